// Package domain contains the persisted subscription model and the
// reconciliation contracts built on top of detection results.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
)

// Subscription is a user's recurring charge, created or refreshed by
// detection and mutated by billing collaborators outside this core.
type Subscription struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	UserID      snowflake.ID `gorm:"not null;index;uniqueIndex:idx_subscriptions_user_name"`
	Name        string       `gorm:"type:text;not null;uniqueIndex:idx_subscriptions_user_name"`
	Description string       `gorm:"type:text"`
	Category    *string      `gorm:"type:text"`
	Amount      float64      `gorm:"not null"`
	Currency    string       `gorm:"type:text;not null"`
	Frequency   string       `gorm:"type:text;not null"`
	NextBilling *time.Time   `gorm:""`
	LastBilling *time.Time   `gorm:""`

	Status   SubscriptionStatus `gorm:"type:text;not null"`
	IsActive bool               `gorm:"not null;default:true"`

	DetectionConfidence float64           `gorm:"not null;default:0"`
	DetectedAt          time.Time         `gorm:"not null"`
	Metadata            datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// MatchStrategy says how an existing subscription was matched to a detected
// merchant, in decreasing order of certainty.
type MatchStrategy string

const (
	MatchExact           MatchStrategy = "exact"
	MatchCaseInsensitive MatchStrategy = "case_insensitive"
	MatchFuzzyToken      MatchStrategy = "fuzzy_token"
)

// Match pairs a found subscription with the strategy that located it.
type Match struct {
	Subscription *Subscription
	Strategy     MatchStrategy
}
