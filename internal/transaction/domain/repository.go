package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// AggregateByMerchant returns per-merchant charge aggregates for the
	// prefilter: non-pending, positive-amount rows since the given date.
	AggregateByMerchant(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time) ([]MerchantAggregate, error)
	// FindByMerchants loads full rows for the candidate merchants, oldest first.
	FindByMerchants(ctx context.Context, db *gorm.DB, userID snowflake.ID, merchants []string, since time.Time) ([]Transaction, error)
	// FindRecentByMerchant returns the newest non-pending charges sharing the
	// exact raw merchant name, excluding one transaction.
	FindRecentByMerchant(ctx context.Context, db *gorm.DB, userID snowflake.ID, merchant string, exclude snowflake.ID, limit int) ([]Transaction, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	// MarkSubscription writes the detection flag and confidence back onto rows.
	MarkSubscription(ctx context.Context, db *gorm.DB, ids []snowflake.ID, isSubscription bool, confidence float64) error
}
