// Package scheduler drives periodic detection sweeps: it selects users with
// recent settled activity and runs the detection pipeline for each, guarded by
// a per-user advisory lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurra/internal/clock"
	detectiondomain "github.com/smallbiznis/recurra/internal/detection/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

const keyDetectUser = "recurra:detect:user:%d"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	DetectionSvc detectiondomain.Service
	Clock        clock.Clock
	Locker       *Locker `optional:"true"`
	Config       Config  `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	detectionSvc detectiondomain.Service
	locker       *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.DetectionSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		detectionSvc: p.DetectionSvc,
		locker:       p.Locker,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("detection sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes one sweep: pick up users with recent settled transactions
// and run detection for each one under its lock. Per-user failures are logged
// and do not stop the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	users, err := s.fetchUsersForWork(ctx)
	if err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}
	if len(users) == 0 {
		return nil
	}
	s.log.Info("detection sweep starting", zap.Int("users", len(users)))

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.runUser(ctx, userID)
	}
	return nil
}

func (s *Scheduler) runUser(parent context.Context, userID snowflake.ID) {
	key := fmt.Sprintf(keyDetectUser, userID)
	token, ok, err := s.locker.TryLock(parent, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("lock acquire failed", zap.Int64("user_id", int64(userID)), zap.Error(err))
		return
	}
	if !ok {
		s.log.Debug("user locked by another run", zap.Int64("user_id", int64(userID)))
		return
	}
	defer func() {
		if err := s.locker.Release(parent, key, token); err != nil {
			s.log.Warn("lock release failed", zap.Int64("user_id", int64(userID)), zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	summary, err := s.detectionSvc.RunForUser(ctx, userID)
	if err != nil {
		s.log.Warn("detection run failed",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err),
		)
		return
	}
	s.log.Info("detection run complete",
		zap.Int64("user_id", int64(userID)),
		zap.Int("detected", summary.Detected),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
	)
}

func (s *Scheduler) fetchUsersForWork(ctx context.Context) ([]snowflake.ID, error) {
	since := s.clock.Now().AddDate(0, 0, -s.cfg.LookbackDays)
	var users []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT user_id
		 FROM transactions
		 WHERE pending = ? AND transaction_date >= ?
		 ORDER BY user_id
		 LIMIT ?`,
		false,
		since,
		s.cfg.UserBatchSize,
	).Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
