package repositories

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"danceBack/internal/models"
)

// CartRepository persists carts of signed-in users.
type CartRepository struct {
	DB *sql.DB
}

func (r *CartRepository) List(ctx context.Context, userID int64) ([]models.CartItem, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, item_type, item_id, title, price, quantity FROM cart_items WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var (
			it models.CartItem
			id int64
		)
		if err := rows.Scan(&id, &it.ItemType, &it.ItemID, &it.Title, &it.Price, &it.Quantity); err != nil {
			return nil, err
		}
		it.ID = strconv.FormatInt(id, 10)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Add inserts the line or increments the quantity of the same product.
func (r *CartRepository) Add(ctx context.Context, userID int64, item models.CartItem) error {
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO cart_items (user_id, item_type, item_id, title, price, quantity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity), title = VALUES(title), price = VALUES(price)`,
		userID, item.ItemType, item.ItemID, item.Title, item.Price, item.Quantity, time.Now(),
	)
	return err
}

func (r *CartRepository) Remove(ctx context.Context, userID int64, cartItemID string) error {
	id, err := strconv.ParseInt(cartItemID, 10, 64)
	if err != nil {
		return models.ErrCartItemNotFound
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res, models.ErrCartItemNotFound)
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID int64, cartItemID string, quantity int) error {
	id, err := strconv.ParseInt(cartItemID, 10, 64)
	if err != nil {
		return models.ErrCartItemNotFound
	}
	var exists bool
	if err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM cart_items WHERE id = ? AND user_id = ?)`, id, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrCartItemNotFound
	}
	_, err = r.DB.ExecContext(ctx, `UPDATE cart_items SET quantity = ? WHERE id = ? AND user_id = ?`, quantity, id, userID)
	return err
}

func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
	return err
}
