package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) error
	FindByName(ctx context.Context, db *gorm.DB, userID snowflake.ID, name string) (*Subscription, error)
	FindByNameFold(ctx context.Context, db *gorm.DB, userID snowflake.ID, name string) (*Subscription, error)
	// FindByTokenPrefix returns subscriptions whose name starts with the given
	// leading token, for the fuzzy match pass.
	FindByTokenPrefix(ctx context.Context, db *gorm.DB, userID snowflake.ID, token string) ([]Subscription, error)
	ListActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Subscription, error)
}
