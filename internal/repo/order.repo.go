package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type OrderRepo interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	// CreateOrderItems inserts every item or none.
	CreateOrderItems(ctx context.Context, items []domain.OrderItem) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	// ApplyPaymentTransition writes t only if the order's payment status is still t.From.
	// applied is false when another writer got there first.
	ApplyPaymentTransition(ctx context.Context, t domain.PaymentTransition, checkoutRequestID string) (applied bool, err error)
	// UpdateOrderStatus moves the order status from -> to only if it is still from.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (applied bool, err error)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, order_number, customer_id, phone_number, total, status, payment_status,
	checkout_request_id, receipt_number, transaction_date, payer_phone, failure_reason, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerID,
		&order.PhoneNumber,
		&order.Total,
		&order.Status,
		&order.Payment,
		&order.CheckoutRequestID,
		&order.ReceiptNumber,
		&order.TransactionDate,
		&order.PayerPhone,
		&order.FailureReason,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (id, order_number, customer_id, phone_number, total, status, payment_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.OrderNumber, order.CustomerID, order.PhoneNumber, order.Total,
		order.Status, order.Payment, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepo) CreateOrderItems(ctx context.Context, items []domain.OrderItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertItems(ctx, tx, items); err != nil {
		return err
	}
	return tx.Commit()
}

func insertItems(ctx context.Context, ex execer, items []domain.OrderItem) error {
	for _, item := range items {
		_, err := ex.ExecContext(ctx,
			"INSERT INTO order_items (id, order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)",
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}
	return nil
}

func (r *orderRepo) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	return err
}

func (r *orderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
}

func (r *orderRepo) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE checkout_request_id = $1", checkoutRequestID))
}

func (r *orderRepo) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, order_id, product_id, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *orderRepo) ApplyPaymentTransition(ctx context.Context, t domain.PaymentTransition, checkoutRequestID string) (bool, error) {
	var res sql.Result
	var err error

	switch t.To {
	case domain.PaymentPending:
		res, err = r.db.ExecContext(ctx, `
			UPDATE orders
			SET payment_status = $3,
			    checkout_request_id = $4,
			    updated_at = now()
			WHERE id = $1 AND payment_status = $2 AND checkout_request_id IS NULL`,
			t.OrderID, t.From, t.To, checkoutRequestID,
		)
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: %s", domain.ErrCorrelationConflict, checkoutRequestID)
		}
	default:
		res, err = r.db.ExecContext(ctx, `
			UPDATE orders
			SET payment_status = $3,
			    status = CASE WHEN $4 AND status = 'pending' THEN 'approved' ELSE status END,
			    receipt_number = COALESCE($5, receipt_number),
			    transaction_date = COALESCE($6, transaction_date),
			    payer_phone = COALESCE($7, payer_phone),
			    failure_reason = COALESCE($8, failure_reason),
			    updated_at = now()
			WHERE id = $1 AND payment_status = $2`,
			t.OrderID, t.From, t.To, t.ApproveOrder,
			t.ReceiptNumber, t.TransactionDate, t.PayerPhone, t.FailureReason,
		)
	}
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *orderRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2",
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
