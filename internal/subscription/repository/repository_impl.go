package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, user_id, name, description, category, amount, currency,
	 frequency, next_billing, last_billing, status, is_active,
	 detection_confidence, detected_at, metadata, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.UserID,
		subscription.Name,
		subscription.Description,
		subscription.Category,
		subscription.Amount,
		subscription.Currency,
		subscription.Frequency,
		subscription.NextBilling,
		subscription.LastBilling,
		subscription.Status,
		subscription.IsActive,
		subscription.DetectionConfidence,
		subscription.DetectedAt,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET name = ?, description = ?, category = ?, amount = ?, currency = ?,
		     frequency = ?, next_billing = ?, last_billing = ?, status = ?,
		     is_active = ?, detection_confidence = ?, metadata = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		subscription.Name,
		subscription.Description,
		subscription.Category,
		subscription.Amount,
		subscription.Currency,
		subscription.Frequency,
		subscription.NextBilling,
		subscription.LastBilling,
		subscription.Status,
		subscription.IsActive,
		subscription.DetectionConfidence,
		subscription.Metadata,
		subscription.UpdatedAt,
		subscription.UserID,
		subscription.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM subscriptions WHERE user_id = ? AND id = ?`,
		userID,
		id,
	).Error
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, userID snowflake.ID, name string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND name = ?
		 LIMIT 1`,
		userID,
		name,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByNameFold(ctx context.Context, db *gorm.DB, userID snowflake.ID, name string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND LOWER(name) = LOWER(?)
		 LIMIT 1`,
		userID,
		name,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByTokenPrefix(ctx context.Context, db *gorm.DB, userID snowflake.ID, token string) ([]subscriptiondomain.Subscription, error) {
	pattern := strings.ToLower(strings.TrimSpace(token)) + "%"
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND LOWER(name) LIKE ?
		 ORDER BY updated_at DESC`,
		userID,
		pattern,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ListActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND is_active = ?
		 ORDER BY updated_at DESC, id DESC`,
		userID,
		true,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
