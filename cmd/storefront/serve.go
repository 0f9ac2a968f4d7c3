package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/infrastructure/payment"
	"storefront/internal/infrastructure/push"
	"storefront/internal/repo"
	"storefront/internal/server"
	"storefront/internal/service"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API: orders, checkout, the payment callback receiver,
push subscriptions and chat notifications.

Examples:
  storefront serve
  storefront serve --addr :9000 --migrate`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :$PORT)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := newLogger()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if serveMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	if err := cfg.Mpesa.Validate(); err != nil {
		// checkout requests fail with ErrNotConfigured until this is fixed
		log.Warn("payment gateway not configured", "error", err)
	}
	if err := cfg.Push.Validate(); err != nil {
		log.Warn("web push not configured", "error", err)
	}

	orderRepo := repo.NewOrderRepo(db)
	conversationRepo := repo.NewConversationRepo(db)
	subscriptionRepo := repo.NewSubscriptionRepo(db)

	gateway := payment.NewMpesaClient(cfg.Mpesa, &http.Client{Timeout: cfg.Mpesa.Timeout})
	sender := push.NewWebPushSender(cfg.Push, &http.Client{Timeout: 10 * time.Second})

	srv := server.New(server.Deps{
		Orders:     service.NewOrderService(orderRepo, log),
		Checkout:   service.NewCheckoutService(orderRepo, gateway, log),
		Reconciler: service.NewCallbackReconciler(orderRepo, log),
		Notifier: service.NewNotificationService(conversationRepo, subscriptionRepo, sender,
			service.NotificationOptions{Icon: cfg.Push.Icon, Badge: cfg.Push.Badge}, log),
		Subscriptions: subscriptionRepo,
		Health: func(ctx context.Context) map[string]string {
			return database.Health(ctx, db)
		},
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})

	addr := serveAddr
	if addr == "" {
		addr = ":" + cfg.Port
	}
	return srv.Run(ctx, addr)
}
