package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/smallbiznis/recurra/internal/transaction/domain"
	"gorm.io/gorm"
)

// merchantExpr groups by the merchant name when present, otherwise the
// free-text description, matching Transaction.DisplayName.
const merchantExpr = `COALESCE(NULLIF(merchant_name, ''), description)`

type repo struct{}

func Provide() transactiondomain.Repository {
	return &repo{}
}

func (r *repo) AggregateByMerchant(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time) ([]transactiondomain.MerchantAggregate, error) {
	var aggregates []transactiondomain.MerchantAggregate
	err := db.WithContext(ctx).Raw(
		`SELECT `+merchantExpr+` AS merchant_name,
		        COUNT(*) AS tx_count,
		        AVG(amount) AS avg_amount,
		        MIN(transaction_date) AS first_date,
		        MAX(transaction_date) AS last_date
		 FROM transactions
		 WHERE user_id = ? AND pending = ? AND amount > 0 AND transaction_date >= ?
		 GROUP BY `+merchantExpr,
		userID,
		false,
		since,
	).Scan(&aggregates).Error
	if err != nil {
		return nil, err
	}
	return aggregates, nil
}

func (r *repo) FindByMerchants(ctx context.Context, db *gorm.DB, userID snowflake.ID, merchants []string, since time.Time) ([]transactiondomain.Transaction, error) {
	if len(merchants) == 0 {
		return nil, nil
	}
	var transactions []transactiondomain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, merchant_name, description, amount, currency,
		        transaction_date, pending, is_subscription, confidence,
		        created_at, updated_at
		 FROM transactions
		 WHERE user_id = ? AND pending = ? AND amount > 0
		   AND transaction_date >= ?
		   AND `+merchantExpr+` IN ?
		 ORDER BY transaction_date ASC, id ASC`,
		userID,
		false,
		since,
		merchants,
	).Scan(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repo) FindRecentByMerchant(ctx context.Context, db *gorm.DB, userID snowflake.ID, merchant string, exclude snowflake.ID, limit int) ([]transactiondomain.Transaction, error) {
	var transactions []transactiondomain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, merchant_name, description, amount, currency,
		        transaction_date, pending, is_subscription, confidence,
		        created_at, updated_at
		 FROM transactions
		 WHERE user_id = ? AND id <> ? AND pending = ? AND amount > 0
		   AND `+merchantExpr+` = ?
		 ORDER BY transaction_date DESC, id DESC
		 LIMIT ?`,
		userID,
		exclude,
		false,
		merchant,
		limit,
	).Scan(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*transactiondomain.Transaction, error) {
	var transaction transactiondomain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, merchant_name, description, amount, currency,
		        transaction_date, pending, is_subscription, confidence,
		        created_at, updated_at
		 FROM transactions WHERE id = ?`,
		id,
	).Scan(&transaction).Error
	if err != nil {
		return nil, err
	}
	if transaction.ID == 0 {
		return nil, nil
	}
	return &transaction, nil
}

func (r *repo) MarkSubscription(ctx context.Context, db *gorm.DB, ids []snowflake.ID, isSubscription bool, confidence float64) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET is_subscription = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id IN ?`,
		isSubscription,
		confidence,
		ids,
	).Error
}
