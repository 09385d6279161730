package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"danceBack/internal/fsm"
	"danceBack/internal/models"
)

type OrderRepository struct {
	DB *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository { return &OrderRepository{DB: db} }

const orderColumns = `id, user_id, total, currency, status, payment_intent_id, checkout_session_id, completed_at, created_at, updated_at`

// Create stores the order and its items in the created state.
func (r *OrderRepository) Create(ctx context.Context, order models.Order) (models.Order, error) {
	if len(order.Items) == 0 {
		return models.Order{}, models.ErrEmptyOrder
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Order{}, err
	}
	defer tx.Rollback()

	order.Status = models.OrderStatusCreated
	order.CreatedAt = time.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (user_id, total, currency, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		order.UserID, order.Total, order.Currency, order.Status, order.CreatedAt,
	)
	if err != nil {
		return models.Order{}, fmt.Errorf("insert order: %w", err)
	}
	order.ID, err = res.LastInsertId()
	if err != nil {
		return models.Order{}, err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		res, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, item_type, item_id, title, quantity, unit_price) VALUES (?, ?, ?, ?, ?, ?)`,
			item.OrderID, item.ItemType, item.ItemID, item.Title, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return models.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return models.Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// MarkPending moves a created order to pending and stores the processor references.
func (r *OrderRepository) MarkPending(ctx context.Context, id int64, paymentIntentID, sessionID string) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE orders SET status = ?, payment_intent_id = ?, checkout_session_id = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		models.OrderStatusPending, nullIfEmpty(paymentIntentID), nullIfEmpty(sessionID), time.Now(),
		id, models.OrderStatusCreated,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, models.ErrStatusConflict)
}

// Transition applies a guarded status change. It fails with
// ErrInvalidTransition when the machine forbids it and ErrStatusConflict
// when the stored status is no longer from.
func (r *OrderRepository) Transition(ctx context.Context, id int64, from, to string, at time.Time) error {
	if from == to || !fsm.Orders.CanTransition(from, to) {
		return fmt.Errorf("%w: order %s -> %s", models.ErrInvalidTransition, from, to)
	}
	var completedAt any
	if fsm.Orders.Terminal(to) {
		completedAt = at
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE orders SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, completedAt, at, id, from,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, models.ErrStatusConflict)
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (models.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return r.withItems(ctx, row)
}

func (r *OrderRepository) GetByCheckoutSessionID(ctx context.Context, sessionID string) (models.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE checkout_session_id = ?`, sessionID)
	return r.withItems(ctx, row)
}

func (r *OrderRepository) withItems(ctx context.Context, row *sql.Row) (models.Order, error) {
	order, err := scanOrder(row)
	if err != nil {
		return models.Order{}, err
	}
	items, err := r.itemsFor(ctx, []int64{order.ID})
	if err != nil {
		return models.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, userID, limit, offset)
}

func (r *OrderRepository) ListRecent(ctx context.Context, limit, offset int) ([]models.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		orders []models.Order
		ids    []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Order{}, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *OrderRepository) itemsFor(ctx context.Context, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, order_id, item_type, item_id, title, quantity, unit_price FROM order_items WHERE order_id IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]models.OrderItem, len(orderIDs))
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemType, &it.ItemID, &it.Title, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

// DeleteAbandoned removes orders that never reached the processor.
func (r *OrderRepository) DeleteAbandoned(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM orders WHERE status = ? AND created_at < ?`, models.OrderStatusCreated, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasPurchased reports whether the user owns the item through a succeeded order.
func (r *OrderRepository) HasPurchased(ctx context.Context, userID int64, itemType string, itemID int64) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
SELECT EXISTS(
    SELECT 1 FROM order_items oi
    JOIN orders o ON o.id = oi.order_id
    WHERE o.user_id = ? AND o.status = ? AND oi.item_type = ? AND oi.item_id = ?
)`, userID, models.OrderStatusSucceeded, itemType, itemID).Scan(&exists)
	return exists, err
}

func scanOrder(scanner interface{ Scan(dest ...any) error }) (models.Order, error) {
	var (
		o         models.Order
		total     decimal.Decimal
		intent    sql.NullString
		session   sql.NullString
		completed sql.NullTime
		updated   sql.NullTime
	)
	err := scanner.Scan(&o.ID, &o.UserID, &total, &o.Currency, &o.Status, &intent, &session, &completed, &o.CreatedAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, models.ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, err
	}
	o.Total = total
	o.PaymentIntentID = intent.String
	o.CheckoutSessionID = session.String
	if completed.Valid {
		t := completed.Time
		o.CompletedAt = &t
	}
	if updated.Valid {
		t := updated.Time
		o.UpdatedAt = &t
	}
	return o, nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func expectOneRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
