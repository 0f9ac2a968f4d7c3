package main

import (
	"context"
	"fmt"
	"log/slog"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/payment"
	"storefront/internal/repo"
	"storefront/internal/repo/memory"
	"storefront/internal/service"
	"storefront/internal/worker"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	simOrders     int
	simCopies     int
	simMemory     bool
	simRejectRate float64
	simFailRate   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run orders through checkout and duplicated callbacks",
	Long: `Create orders, check them out against an in-process fake gateway, then
deliver every charge outcome several times concurrently. Each order must end
with exactly one applied settlement no matter how many copies arrive.

Examples:
  storefront simulate --memory
  storefront simulate --orders 50 --copies 8 --fail-rate 0.2`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simOrders, "orders", 20, "number of orders to create")
	simulateCmd.Flags().IntVar(&simCopies, "copies", 3, "concurrent deliveries per callback")
	simulateCmd.Flags().BoolVar(&simMemory, "memory", false, "use in-memory repositories instead of postgres")
	simulateCmd.Flags().Float64Var(&simRejectRate, "reject-rate", 0.1, "probability a charge is rejected at submission")
	simulateCmd.Flags().Float64Var(&simFailRate, "fail-rate", 0.2, "probability an accepted charge reports failure")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := newLogger()

	orderRepo, cleanup, err := simulationRepo(ctx, simMemory, log)
	if err != nil {
		return err
	}
	defer cleanup()

	gateway := payment.NewFakeGateway()
	gateway.RejectRate = simRejectRate
	gateway.FailRate = simFailRate

	orders := service.NewOrderService(orderRepo, log)
	checkout := service.NewCheckoutService(orderRepo, gateway, log)
	reconciler := service.NewCallbackReconciler(orderRepo, log)

	fmt.Printf("--- STARTING SIMULATION (%d ORDERS, %d COPIES PER CALLBACK) ---\n", simOrders, simCopies)

	var created []uuid.UUID
	var checkoutIDs []string
	for i := range simOrders {
		order, err := orders.CreateOrder(ctx, service.CreateOrderInput{
			CustomerID:  uuid.New(),
			PhoneNumber: "0712345678",
			Items: []service.ItemInput{
				{ProductID: uuid.New(), Quantity: 1 + i%3, UnitPrice: 450},
			},
		})
		if err != nil {
			log.Error("create order failed", "error", err)
			continue
		}
		created = append(created, order.ID)

		res, err := checkout.StartCheckout(ctx, order.ID)
		if err != nil {
			fmt.Printf("[%d] %s checkout FAILED: %v\n", i+1, order.OrderNumber, err)
			continue
		}
		fmt.Printf("[%d] %s checkout accepted: %s\n", i+1, order.OrderNumber, res.CheckoutRequestID)
		checkoutIDs = append(checkoutIDs, res.CheckoutRequestID)
	}

	replayer := worker.NewCallbackReplayer(gateway, reconciler, simCopies, log)
	stats, err := replayer.Replay(ctx, checkoutIDs)
	if err != nil {
		return err
	}

	fmt.Println("---------------------------------------------------")
	tally := map[domain.PaymentStatus]int{}
	for _, id := range created {
		o, _, err := orders.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		tally[o.Payment]++
		fmt.Printf("%s  status=%-9s payment=%-7s receipt=%s\n",
			o.OrderNumber, o.Status, o.Payment, domain.StringValue(o.ReceiptNumber))
	}
	fmt.Println("---------------------------------------------------")
	fmt.Printf("callbacks delivered: %d  applied: %d  duplicates: %d  failed: %d\n",
		stats.Callbacks, stats.Applied, stats.Duplicate, stats.Failed)
	fmt.Printf("unset: %d  pending: %d  paid: %d  failed: %d\n",
		tally[domain.PaymentUnset], tally[domain.PaymentPending], tally[domain.PaymentPaid], tally[domain.PaymentFailed])

	if stats.Applied != len(checkoutIDs) {
		return fmt.Errorf("expected %d applied settlements, got %d", len(checkoutIDs), stats.Applied)
	}
	return nil
}

func simulationRepo(ctx context.Context, inMemory bool, log *slog.Logger) (repo.OrderRepo, func(), error) {
	if inMemory {
		return memory.NewOrderRepo(), func() {}, nil
	}
	cfg := config.Load()
	db, err := database.NewPostgres(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("simulation using postgres", "host", cfg.Database.Host)
	return repo.NewOrderRepo(db), func() { db.Close() }, nil
}
