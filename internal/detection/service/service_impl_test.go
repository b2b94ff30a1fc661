package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	detectiondomain "github.com/smallbiznis/recurra/internal/detection/domain"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/recurra/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/recurra/internal/subscription/service"
	transactiondomain "github.com/smallbiznis/recurra/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manual Mocks

type mockTransactionRepo struct {
	transactions []transactiondomain.Transaction
	marked       map[snowflake.ID]float64
}

func newMockTransactionRepo() *mockTransactionRepo {
	return &mockTransactionRepo{marked: make(map[snowflake.ID]float64)}
}

func (m *mockTransactionRepo) AggregateByMerchant(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time) ([]transactiondomain.MerchantAggregate, error) {
	byName := make(map[string]*transactiondomain.MerchantAggregate)
	var order []string
	for _, tx := range m.transactions {
		if tx.UserID != userID || tx.Pending || tx.Amount <= 0 || tx.TransactionDate.Before(since) {
			continue
		}
		name := tx.DisplayName()
		agg, ok := byName[name]
		if !ok {
			agg = &transactiondomain.MerchantAggregate{
				MerchantName: name,
				FirstDate:    tx.TransactionDate,
				LastDate:     tx.TransactionDate,
			}
			byName[name] = agg
			order = append(order, name)
		}
		agg.TxCount++
		agg.AvgAmount += tx.Amount
		if tx.TransactionDate.Before(agg.FirstDate) {
			agg.FirstDate = tx.TransactionDate
		}
		if tx.TransactionDate.After(agg.LastDate) {
			agg.LastDate = tx.TransactionDate
		}
	}
	result := make([]transactiondomain.MerchantAggregate, 0, len(order))
	for _, name := range order {
		agg := byName[name]
		agg.AvgAmount /= float64(agg.TxCount)
		result = append(result, *agg)
	}
	return result, nil
}

func (m *mockTransactionRepo) FindByMerchants(ctx context.Context, db *gorm.DB, userID snowflake.ID, merchants []string, since time.Time) ([]transactiondomain.Transaction, error) {
	wanted := make(map[string]struct{}, len(merchants))
	for _, name := range merchants {
		wanted[name] = struct{}{}
	}
	var result []transactiondomain.Transaction
	for _, tx := range m.transactions {
		if tx.UserID != userID || tx.Pending || tx.Amount <= 0 || tx.TransactionDate.Before(since) {
			continue
		}
		if _, ok := wanted[tx.DisplayName()]; ok {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TransactionDate.Before(result[j].TransactionDate)
	})
	return result, nil
}

func (m *mockTransactionRepo) FindRecentByMerchant(ctx context.Context, db *gorm.DB, userID snowflake.ID, merchant string, exclude snowflake.ID, limit int) ([]transactiondomain.Transaction, error) {
	var result []transactiondomain.Transaction
	for _, tx := range m.transactions {
		if tx.UserID != userID || tx.ID == exclude || tx.Pending || tx.Amount <= 0 {
			continue
		}
		if tx.DisplayName() == merchant {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TransactionDate.After(result[j].TransactionDate)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockTransactionRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*transactiondomain.Transaction, error) {
	for i := range m.transactions {
		if m.transactions[i].ID == id {
			tx := m.transactions[i]
			return &tx, nil
		}
	}
	return nil, nil
}

func (m *mockTransactionRepo) MarkSubscription(ctx context.Context, db *gorm.DB, ids []snowflake.ID, isSubscription bool, confidence float64) error {
	for _, id := range ids {
		m.marked[id] = confidence
	}
	return nil
}

type disabledCategorizer struct{}

func (disabledCategorizer) Categorize(context.Context, subscriptiondomain.CategorizeRequest) (subscriptiondomain.Categorization, error) {
	return subscriptiondomain.Categorization{}, subscriptiondomain.ErrCategorizationDisabled
}

type fixture struct {
	svc     detectiondomain.Service
	txRepo  *mockTransactionRepo
	db      *gorm.DB
	node    *snowflake.Node
	userID  snowflake.ID
	subRepo subscriptiondomain.Repository
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC))
	txRepo := newMockTransactionRepo()

	subSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        subscriptionrepo.Provide(),
		Categorizer: disabledCategorizer{},
		Cfg:         config.Config{DefaultCurrency: "USD"},
	})

	svc := NewService(ServiceParam{
		DB:            db,
		Log:           zap.NewNop(),
		Clock:         fakeClock,
		Transactions:  txRepo,
		Subscriptions: subSvc,
	})

	return &fixture{
		svc:     svc,
		txRepo:  txRepo,
		db:      db,
		node:    node,
		userID:  node.Generate(),
		subRepo: subscriptionrepo.Provide(),
	}
}

func (f *fixture) addTransaction(merchant string, amount float64, day time.Time) snowflake.ID {
	id := f.node.Generate()
	name := merchant
	f.txRepo.transactions = append(f.txRepo.transactions, transactiondomain.Transaction{
		ID:              id,
		UserID:          f.userID,
		MerchantName:    &name,
		Description:     merchant,
		Amount:          amount,
		Currency:        "USD",
		TransactionDate: day,
	})
	return id
}

func TestRunForUserDetectsMonthlySubscription(t *testing.T) {
	f := newFixture(t)
	ids := []snowflake.ID{
		f.addTransaction("Netflix", 15.99, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)),
		f.addTransaction("Netflix", 16.05, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)),
		f.addTransaction("Netflix", 15.95, time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)),
	}
	f.addTransaction("Corner Bakery", 4.5, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	summary, err := f.svc.RunForUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.MerchantsConsidered)
	assert.Equal(t, 1, summary.MerchantsAnalyzed)
	assert.Equal(t, 1, summary.Detected)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 0, summary.Errors)

	for _, id := range ids {
		confidence, ok := f.txRepo.marked[id]
		require.True(t, ok, "transaction %d not flagged", id)
		assert.GreaterOrEqual(t, confidence, 0.5)
	}

	sub, err := f.subRepo.FindByName(context.Background(), f.db, f.userID, "Netflix")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "monthly", sub.Frequency)
	require.NotNil(t, sub.NextBilling)
	assert.True(t, sub.NextBilling.Equal(time.Date(2024, time.April, 3, 0, 0, 0, 0, time.UTC)))
}

func TestRunForUserIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("Netflix", 15.99, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Netflix", 15.99, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Netflix", 15.99, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))

	first, err := f.svc.RunForUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := f.svc.RunForUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Updated)

	subs, err := f.subRepo.ListActiveByUser(context.Background(), f.db, f.userID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestRunForUserMergesMerchantVariants(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("Netflix", 15.99, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("NETFLIX INC", 15.99, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Netflix", 15.99, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("NETFLIX INC", 15.99, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC))

	summary, err := f.svc.RunForUser(context.Background(), f.userID)
	require.NoError(t, err)
	// Raw names differ, but they normalize into one merchant group.
	assert.Equal(t, 1, summary.MerchantsAnalyzed)
	assert.Equal(t, 1, summary.Detected)

	subs, err := f.subRepo.ListActiveByUser(context.Background(), f.db, f.userID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestRunForUserDetectsAcrossNameDrift(t *testing.T) {
	f := newFixture(t)
	// The middle charge carries a one-off name variant. Per-raw-name gating
	// would prune it (count 1) and leave a 62-day gap that matches nothing.
	f.addTransaction("Netflix", 9.99, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Netflix Inc", 9.99, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Netflix", 9.99, time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC))

	summary, err := f.svc.RunForUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MerchantsAnalyzed)
	assert.Equal(t, 1, summary.Detected)
	assert.Equal(t, 1, summary.Created)
	assert.Len(t, f.txRepo.marked, 3)
}

func TestRunForUserSkipsShortSpans(t *testing.T) {
	f := newFixture(t)
	// Two charges five days apart: enough rows, not enough history.
	f.addTransaction("Gym Drop-In", 12, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Gym Drop-In", 12, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC))

	summary, err := f.svc.RunForUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MerchantsConsidered)
	assert.Equal(t, 0, summary.MerchantsAnalyzed)
	assert.Equal(t, 0, summary.Detected)
}

func TestRunForUserRejectsIrregularCharges(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("Hardware Store", 42, time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Hardware Store", 180, time.Date(2023, time.June, 10, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Hardware Store", 7, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC))

	summary, err := f.svc.RunForUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MerchantsAnalyzed)
	assert.Equal(t, 0, summary.Detected)
	assert.Empty(t, f.txRepo.marked)
}

func TestRunForUserRejectsZeroUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RunForUser(context.Background(), 0)
	assert.ErrorIs(t, err, detectiondomain.ErrInvalidUser)
}

func TestDetectForTransaction(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("Spotify", 9.99, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))
	f.addTransaction("Spotify", 9.99, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))
	target := f.addTransaction("Spotify", 9.99, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))

	result, err := f.svc.DetectForTransaction(context.Background(), target)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsSubscription)
	require.NotNil(t, result.Frequency)
	assert.Equal(t, "monthly", string(*result.Frequency))

	confidence, ok := f.txRepo.marked[target]
	require.True(t, ok)
	assert.InDelta(t, result.Confidence, confidence, 1e-9)
}

func TestDetectForTransactionInsufficientPeers(t *testing.T) {
	f := newFixture(t)
	target := f.addTransaction("One-Off Store", 99, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))

	result, err := f.svc.DetectForTransaction(context.Background(), target)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDetectForTransactionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DetectForTransaction(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, detectiondomain.ErrTransactionNotFound)
}

func TestDetectForTransactionIgnoresPending(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("Spotify", 9.99, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))
	target := f.addTransaction("Spotify", 9.99, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))
	for i := range f.txRepo.transactions {
		if f.txRepo.transactions[i].ID == target {
			f.txRepo.transactions[i].Pending = true
		}
	}

	result, err := f.svc.DetectForTransaction(context.Background(), target)
	require.NoError(t, err)
	assert.Nil(t, result)
}
