// Package migration keeps the schema in sync at startup.
package migration

import (
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/recurra/internal/transaction/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		return conn.AutoMigrate(
			&transactiondomain.Transaction{},
			&subscriptiondomain.Subscription{},
		)
	}),
)
