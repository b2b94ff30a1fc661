// Package domain contains the transaction feed contract consumed by detection.
// Transactions are owned by the surrounding system; this core reads them and
// writes back only the derived subscription flag and confidence.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Transaction is one row of the user's bank feed.
type Transaction struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	UserID          snowflake.ID `gorm:"not null;index"`
	MerchantName    *string      `gorm:"type:text"`
	Description     string       `gorm:"type:text;not null"`
	Amount          float64      `gorm:"not null"`
	Currency        string       `gorm:"type:text;not null"`
	TransactionDate time.Time    `gorm:"not null;index"`
	Pending         bool         `gorm:"not null;default:false"`

	// Written back by detection.
	IsSubscription bool    `gorm:"not null;default:false"`
	Confidence     float64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

// DisplayName prefers the merchant name over the free-text description.
func (t Transaction) DisplayName() string {
	if t.MerchantName != nil && *t.MerchantName != "" {
		return *t.MerchantName
	}
	return t.Description
}

// MerchantAggregate is one row of the prefilter's grouped aggregate query.
type MerchantAggregate struct {
	MerchantName string
	TxCount      int
	AvgAmount    float64
	FirstDate    time.Time
	LastDate     time.Time
}

// Span is the distance between the first and last observed charge.
func (a MerchantAggregate) Span() time.Duration {
	return a.LastDate.Sub(a.FirstDate)
}
