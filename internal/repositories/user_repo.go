package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"danceBack/internal/models"
)

type UserRepository struct {
	DB *sql.DB
}

const userColumns = `id, firebase_uid, email, username, display_name, avatar_url, role, subscription_tier, stripe_customer_id, fcm_token, created_at, updated_at`

func (r *UserRepository) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	roles, err := json.Marshal(user.Roles())
	if err != nil {
		return models.User{}, err
	}
	if user.SubscriptionTier == "" {
		user.SubscriptionTier = models.TierFree
	}
	user.Role = user.Roles()
	user.CreatedAt = time.Now()

	query := `
        INSERT INTO users (firebase_uid, email, username, display_name, avatar_url, role, subscription_tier, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := r.DB.ExecContext(ctx, query,
		user.FirebaseUID, user.Email, user.Username, user.DisplayName, user.AvatarURL, string(roles), user.SubscriptionTier, user.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err, "username") {
			return models.User{}, models.ErrDuplicateUsername
		}
		if isDuplicateEntry(err, "firebase_uid") {
			return models.User{}, models.ErrDuplicateUser
		}
		return models.User{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.User{}, err
	}
	user.ID = id
	return user, nil
}

func (r *UserRepository) GetByUID(ctx context.Context, uid string) (models.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE firebase_uid = ?`, uid)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (models.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id = ?`, customerID)
	return scanUser(row)
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error {
	return r.updateOne(ctx, `UPDATE users SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`, customerID, time.Now(), userID)
}

func (r *UserRepository) SetSubscriptionTier(ctx context.Context, userID int64, tier string) error {
	return r.updateOne(ctx, `UPDATE users SET subscription_tier = ?, updated_at = ? WHERE id = ?`, tier, time.Now(), userID)
}

func (r *UserRepository) SetFCMToken(ctx context.Context, userID int64, token string) error {
	return r.updateOne(ctx, `UPDATE users SET fcm_token = ?, updated_at = ? WHERE id = ?`, token, time.Now(), userID)
}

func (r *UserRepository) updateOne(ctx context.Context, query string, args ...any) error {
	_, err := r.DB.ExecContext(ctx, query, args...)
	return err
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (models.User, error) {
	var (
		user     models.User
		rawRole  sql.NullString
		display  sql.NullString
		avatar   sql.NullString
		customer sql.NullString
		fcm      sql.NullString
		updated  sql.NullTime
	)
	err := scanner.Scan(
		&user.ID, &user.FirebaseUID, &user.Email, &user.Username, &display, &avatar,
		&rawRole, &user.SubscriptionTier, &customer, &fcm, &user.CreatedAt, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if rawRole.Valid && rawRole.String != "" {
		if err := json.Unmarshal([]byte(rawRole.String), &user.Role); err != nil {
			return models.User{}, fmt.Errorf("decode role for user %d: %w", user.ID, err)
		}
	}
	user.Role = user.Roles()
	user.DisplayName = display.String
	user.AvatarURL = avatar.String
	user.StripeCustomerID = customer.String
	user.FCMToken = fcm.String
	if updated.Valid {
		t := updated.Time
		user.UpdatedAt = &t
	}
	return user, nil
}
