package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/config"
	"github.com/smallbiznis/recurra/internal/detection/cadence"
	detectiondomain "github.com/smallbiznis/recurra/internal/detection/domain"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"github.com/smallbiznis/recurra/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        subscriptiondomain.Repository
	categorizer subscriptiondomain.Categorizer
	metrics     *obsmetrics.Metrics

	defaultCurrency string
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        subscriptiondomain.Repository
	Categorizer subscriptiondomain.Categorizer
	Metrics     *obsmetrics.Metrics `optional:"true"`
	Cfg         config.Config
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		categorizer: p.Categorizer,
		metrics:     p.Metrics,

		defaultCurrency: p.Cfg.DefaultCurrency,
	}
}

// ReconcileDetections implements domain.Service.
func (s *Service) ReconcileDetections(ctx context.Context, userID snowflake.ID, results []detectiondomain.DetectionResult) (subscriptiondomain.ReconcileSummary, error) {
	var summary subscriptiondomain.ReconcileSummary
	if userID == 0 {
		return summary, detectiondomain.ErrInvalidUser
	}

	for _, result := range results {
		if !result.IsSubscription || result.Frequency == nil {
			summary.Skipped++
			continue
		}

		action, err := s.reconcileOne(ctx, userID, result)
		if err != nil {
			summary.Errors++
			s.metrics.RecordReconcileError(ctx)
			s.log.Warn("reconcile failed for merchant",
				zap.String("merchant", result.MerchantName),
				zap.Int64("user_id", int64(userID)),
				zap.Error(err),
			)
			continue
		}
		switch action {
		case actionCreated:
			summary.Created++
			s.metrics.RecordSubscriptionUpsert(ctx, "created")
		case actionUpdated:
			summary.Updated++
			s.metrics.RecordSubscriptionUpsert(ctx, "updated")
		default:
			summary.Skipped++
		}
	}

	return summary, nil
}

type reconcileAction string

const (
	actionCreated reconcileAction = "created"
	actionUpdated reconcileAction = "updated"
	actionSkipped reconcileAction = "skipped"
)

func (s *Service) reconcileOne(ctx context.Context, userID snowflake.ID, result detectiondomain.DetectionResult) (reconcileAction, error) {
	match, err := s.FindMatch(ctx, userID, result.MerchantName)
	if err != nil {
		return actionSkipped, err
	}

	now := s.clock.Now()
	lastBilling := result.LastBilling

	if match == nil {
		subscription := &subscriptiondomain.Subscription{
			ID:          s.genID.Generate(),
			UserID:      userID,
			Name:        result.MerchantName,
			Description: "Detected from transaction history",
			Amount:      result.AverageAmount,
			Currency:    s.defaultCurrency,
			Frequency:   string(*result.Frequency),
			NextBilling: result.NextBilling,
			LastBilling: &lastBilling,

			Status:   subscriptiondomain.SubscriptionStatusActive,
			IsActive: true,

			DetectionConfidence: result.Confidence,
			DetectedAt:          now,
			Metadata: datatypes.JSONMap{
				"source":         "auto_detect",
				"normalized_key": result.NormalizedKey,
			},

			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, s.db, subscription); err != nil {
			if db.IsDuplicateKeyErr(err) {
				// A concurrent run won the insert; its record will be picked
				// up on the next reconcile.
				s.log.Debug("subscription already inserted",
					zap.String("name", subscription.Name),
					zap.Int64("user_id", int64(userID)),
				)
				return actionSkipped, nil
			}
			return actionSkipped, err
		}
		s.categorize(ctx, subscription)
		return actionCreated, nil
	}

	existing := match.Subscription
	existing.Amount = result.AverageAmount
	existing.NextBilling = result.NextBilling
	existing.LastBilling = &lastBilling
	existing.DetectionConfidence = result.Confidence
	// Reactivation: a cancelled subscription reappearing in the stream is
	// evidence the user resubscribed.
	existing.Status = subscriptiondomain.SubscriptionStatusActive
	existing.IsActive = true
	existing.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, existing); err != nil {
		return actionSkipped, err
	}

	if existing.Category == nil || strings.TrimSpace(*existing.Category) == "" {
		s.categorize(ctx, existing)
	}
	return actionUpdated, nil
}

// categorize invokes the external collaborator and persists its label.
// Failures are logged and never surfaced: subscription writes stand on their
// own.
func (s *Service) categorize(ctx context.Context, subscription *subscriptiondomain.Subscription) {
	categorization, err := s.categorizer.Categorize(ctx, subscriptiondomain.CategorizeRequest{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		MerchantName:   subscription.Name,
	})
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrCategorizationDisabled) {
			s.log.Debug("categorization disabled",
				zap.Int64("subscription_id", int64(subscription.ID)),
			)
			return
		}
		s.log.Warn("categorization failed",
			zap.Int64("subscription_id", int64(subscription.ID)),
			zap.Error(err),
		)
		return
	}

	category := categorization.Category
	subscription.Category = &category
	if subscription.Metadata == nil {
		subscription.Metadata = datatypes.JSONMap{}
	}
	subscription.Metadata["category_confidence"] = categorization.Confidence
	subscription.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, subscription); err != nil {
		s.log.Warn("persisting category failed",
			zap.Int64("subscription_id", int64(subscription.ID)),
			zap.Error(err),
		)
	}
}

// FindMatch implements domain.Service.
func (s *Service) FindMatch(ctx context.Context, userID snowflake.ID, name string) (*subscriptiondomain.Match, error) {
	subscription, err := s.repo.FindByName(ctx, s.db, userID, name)
	if err != nil {
		return nil, err
	}
	if subscription != nil {
		return &subscriptiondomain.Match{Subscription: subscription, Strategy: subscriptiondomain.MatchExact}, nil
	}

	subscription, err = s.repo.FindByNameFold(ctx, s.db, userID, name)
	if err != nil {
		return nil, err
	}
	if subscription != nil {
		return &subscriptiondomain.Match{Subscription: subscription, Strategy: subscriptiondomain.MatchCaseInsensitive}, nil
	}

	token := leadingToken(name)
	if token == "" {
		return nil, nil
	}
	candidates, err := s.repo.FindByTokenPrefix(ctx, s.db, userID, token)
	if err != nil {
		return nil, err
	}

	key := cadence.NormalizeMerchant(name)
	for i := range candidates {
		if cadence.NormalizeMerchant(candidates[i].Name) == key {
			return &subscriptiondomain.Match{Subscription: &candidates[i], Strategy: subscriptiondomain.MatchFuzzyToken}, nil
		}
	}
	return nil, nil
}

// Deduplicate implements domain.Service. It repairs fragmentation caused by
// merchant-name drift across detection runs.
func (s *Service) Deduplicate(ctx context.Context, userID snowflake.ID) (int, error) {
	subscriptions, err := s.repo.ListActiveByUser(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}

	byKey := make(map[string][]subscriptiondomain.Subscription)
	for _, subscription := range subscriptions {
		key := cadence.NormalizeMerchant(subscription.Name)
		byKey[key] = append(byKey[key], subscription)
	}

	removed := 0
	for _, group := range byKey {
		if len(group) < 2 {
			continue
		}

		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if hasCategory(a) != hasCategory(b) {
				return hasCategory(a)
			}
			if a.DetectionConfidence != b.DetectionConfidence {
				return a.DetectionConfidence > b.DetectionConfidence
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		})

		winner := group[0]
		for _, loser := range group[1:] {
			if err := s.repo.Delete(ctx, s.db, userID, loser.ID); err != nil {
				return removed, err
			}
			removed++
			s.log.Info("merged duplicate subscription",
				zap.Int64("kept", int64(winner.ID)),
				zap.Int64("removed", int64(loser.ID)),
				zap.String("name", loser.Name),
			)
		}
	}

	s.metrics.RecordDedupMerges(ctx, removed)
	return removed, nil
}

func hasCategory(s subscriptiondomain.Subscription) bool {
	return s.Category != nil && strings.TrimSpace(*s.Category) != ""
}

func leadingToken(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
