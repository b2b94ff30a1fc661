package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	detectiondomain "github.com/smallbiznis/recurra/internal/detection/domain"
	transactiondomain "github.com/smallbiznis/recurra/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubDetectionService struct {
	ran []snowflake.ID
	err error
}

func (s *stubDetectionService) RunForUser(ctx context.Context, userID snowflake.ID) (detectiondomain.RunSummary, error) {
	s.ran = append(s.ran, userID)
	return detectiondomain.RunSummary{UserID: userID}, s.err
}

func (s *stubDetectionService) DetectForTransaction(ctx context.Context, id snowflake.ID) (*detectiondomain.DetectionResult, error) {
	return nil, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&transactiondomain.Transaction{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestScheduler(t *testing.T, db *gorm.DB, svc detectiondomain.Service) (*Scheduler, *clock.FakeClock) {
	fakeClock := clock.NewFakeClock(time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC))
	sched, err := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		DetectionSvc: svc,
		Clock:        fakeClock,
	})
	require.NoError(t, err)
	return sched, fakeClock
}

func seedTransaction(t *testing.T, db *gorm.DB, node *snowflake.Node, userID snowflake.ID, day time.Time, pending bool) {
	name := "Netflix"
	require.NoError(t, db.Create(&transactiondomain.Transaction{
		ID:              node.Generate(),
		UserID:          userID,
		MerchantName:    &name,
		Description:     "NETFLIX.COM",
		Amount:          15.99,
		Currency:        "USD",
		TransactionDate: day,
		Pending:         pending,
	}).Error)
}

func TestRunOnceSweepsActiveUsers(t *testing.T) {
	db := setupTestDB(t)
	svc := &stubDetectionService{}
	sched, fakeClock := newTestScheduler(t, db, svc)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	userA := node.Generate()
	userB := node.Generate()

	seedTransaction(t, db, node, userA, fakeClock.Now().AddDate(0, -1, 0), false)
	seedTransaction(t, db, node, userA, fakeClock.Now().AddDate(0, -2, 0), false)
	seedTransaction(t, db, node, userB, fakeClock.Now().AddDate(0, 0, -3), false)

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.ElementsMatch(t, []snowflake.ID{userA, userB}, svc.ran)
}

func TestRunOnceSkipsPendingAndStaleActivity(t *testing.T) {
	db := setupTestDB(t)
	svc := &stubDetectionService{}
	sched, fakeClock := newTestScheduler(t, db, svc)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	pendingOnly := node.Generate()
	stale := node.Generate()

	seedTransaction(t, db, node, pendingOnly, fakeClock.Now().AddDate(0, 0, -5), true)
	seedTransaction(t, db, node, stale, fakeClock.Now().AddDate(-2, 0, 0), false)

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Empty(t, svc.ran)
}

func TestRunOnceContinuesAfterUserFailure(t *testing.T) {
	db := setupTestDB(t)
	svc := &stubDetectionService{err: assert.AnError}
	sched, fakeClock := newTestScheduler(t, db, svc)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	userA := node.Generate()
	userB := node.Generate()
	seedTransaction(t, db, node, userA, fakeClock.Now().AddDate(0, 0, -1), false)
	seedTransaction(t, db, node, userB, fakeClock.Now().AddDate(0, 0, -2), false)

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Len(t, svc.ran, 2)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProvideConfigMapsTunables(t *testing.T) {
	cfg := ProvideConfig(config.Config{
		Scheduler: config.SchedulerConfig{
			RunInterval:   30 * time.Minute,
			RunTimeout:    time.Minute,
			UserBatchSize: 25,
			LookbackDays:  90,
			LockTTL:       10 * time.Minute,
		},
	})

	assert.Equal(t, 30*time.Minute, cfg.RunInterval)
	assert.Equal(t, time.Minute, cfg.RunTimeout)
	assert.Equal(t, 25, cfg.UserBatchSize)
	assert.Equal(t, 90, cfg.LookbackDays)
	assert.Equal(t, 10*time.Minute, cfg.LockTTL)
}

func TestProvideConfigUnsetFallsBackToDefaults(t *testing.T) {
	cfg := ProvideConfig(config.Config{}).withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{UserBatchSize: 10}.withDefaults()
	assert.Equal(t, 10, cfg.UserBatchSize)
	assert.Equal(t, DefaultConfig().RunInterval, cfg.RunInterval)
	assert.Equal(t, DefaultConfig().LockTTL, cfg.LockTTL)
}
