package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/detection/cadence"
	detectiondomain "github.com/smallbiznis/recurra/internal/detection/domain"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/recurra/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock         clock.Clock
	transactions  transactiondomain.Repository
	subscriptions subscriptiondomain.Service
	metrics       *obsmetrics.Metrics

	cfg detectiondomain.Config
}

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Transactions  transactiondomain.Repository
	Subscriptions subscriptiondomain.Service
	Metrics       *obsmetrics.Metrics    `optional:"true"`
	Cfg           detectiondomain.Config `optional:"true"`
}

func NewService(p ServiceParam) detectiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("detection.service"),

		clock:         p.Clock,
		transactions:  p.Transactions,
		subscriptions: p.Subscriptions,
		metrics:       p.Metrics,

		cfg: p.Cfg.WithDefaults(),
	}
}

// merchantGroup is one normalized merchant's charge history. DisplayName is
// the raw name of the most recent charge, so the subscription record carries
// the freshest spelling the bank feed produced.
type merchantGroup struct {
	Key          string
	DisplayName  string
	Transactions []transactiondomain.Transaction
}

// RunForUser implements domain.Service.
func (s *Service) RunForUser(ctx context.Context, userID snowflake.ID) (detectiondomain.RunSummary, error) {
	start := s.clock.Now()
	summary := detectiondomain.RunSummary{UserID: userID}
	if userID == 0 {
		return summary, detectiondomain.ErrInvalidUser
	}

	since := start.AddDate(0, 0, -s.cfg.LookbackDays)

	aggregates, err := s.transactions.AggregateByMerchant(ctx, s.db, userID, since)
	if err != nil {
		s.metrics.RecordDetectionRun(ctx, "error", s.clock.Now().Sub(start))
		return summary, err
	}
	summary.MerchantsConsidered = len(aggregates)

	merchants := s.candidateMerchants(aggregates)
	if len(merchants) == 0 {
		summary.Duration = s.clock.Now().Sub(start)
		s.metrics.RecordDetectionRun(ctx, "ok", summary.Duration)
		return summary, nil
	}

	transactions, err := s.transactions.FindByMerchants(ctx, s.db, userID, merchants, since)
	if err != nil {
		s.metrics.RecordDetectionRun(ctx, "error", s.clock.Now().Sub(start))
		return summary, err
	}

	groups := s.groupByMerchant(transactions)
	summary.MerchantsAnalyzed = len(groups)
	s.metrics.RecordMerchantsAnalyzed(ctx, len(groups))

	results := make([]*detectiondomain.DetectionResult, len(groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.AnalysisWorkers)
	for i, group := range groups {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = s.analyzeGroup(group)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		s.metrics.RecordDetectionRun(ctx, "error", s.clock.Now().Sub(start))
		return summary, err
	}

	detected := make([]detectiondomain.DetectionResult, 0, len(results))
	for _, result := range results {
		if result == nil || !result.IsSubscription {
			continue
		}
		detected = append(detected, *result)

		if err := s.transactions.MarkSubscription(ctx, s.db, result.TransactionIDs, true, result.Confidence); err != nil {
			summary.Errors++
			s.log.Warn("flag write-back failed",
				zap.String("merchant", result.MerchantName),
				zap.Error(err),
			)
		}
	}
	summary.Detected = len(detected)

	reconcile, err := s.subscriptions.ReconcileDetections(ctx, userID, detected)
	if err != nil {
		s.metrics.RecordDetectionRun(ctx, "error", s.clock.Now().Sub(start))
		return summary, err
	}
	summary.Created = reconcile.Created
	summary.Updated = reconcile.Updated
	summary.Skipped = reconcile.Skipped
	summary.Errors += reconcile.Errors

	merged, err := s.subscriptions.Deduplicate(ctx, userID)
	if err != nil {
		// Dedup is repair work; a failure must not void the run's writes.
		summary.Errors++
		s.log.Warn("dedup pass failed",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err),
		)
	}
	summary.DedupMerged = merged

	summary.Duration = s.clock.Now().Sub(start)
	s.metrics.RecordDetectionRun(ctx, "ok", summary.Duration)
	s.log.Info("detection run finished",
		zap.Int64("user_id", int64(userID)),
		zap.Int("merchants_considered", summary.MerchantsConsidered),
		zap.Int("merchants_analyzed", summary.MerchantsAnalyzed),
		zap.Int("detected", summary.Detected),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("dedup_merged", summary.DedupMerged),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// DetectForTransaction implements domain.Service.
func (s *Service) DetectForTransaction(ctx context.Context, id snowflake.ID) (*detectiondomain.DetectionResult, error) {
	transaction, err := s.transactions.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, detectiondomain.ErrTransactionNotFound
	}
	if transaction.Pending || transaction.Amount <= 0 {
		return nil, nil
	}

	peers, err := s.transactions.FindRecentByMerchant(ctx, s.db, transaction.UserID, transaction.DisplayName(), transaction.ID, s.cfg.PeerLimit)
	if err != nil {
		return nil, err
	}
	if len(peers)+1 < s.cfg.Cadence.MinTransactions {
		return nil, nil
	}

	combined := append(peers, *transaction)
	sort.Slice(combined, func(i, j int) bool {
		return combined[i].TransactionDate.Before(combined[j].TransactionDate)
	})
	group := merchantGroup{
		Key:          cadence.NormalizeMerchant(transaction.DisplayName()),
		DisplayName:  transaction.DisplayName(),
		Transactions: combined,
	}
	result := s.analyzeGroup(group)
	if result == nil {
		return nil, nil
	}

	if result.IsSubscription {
		if err := s.transactions.MarkSubscription(ctx, s.db, []snowflake.ID{transaction.ID}, true, result.Confidence); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// candidateMerchants applies the prefilter gates. Aggregates are merged by
// normalized merchant key first: the count and span thresholds must see the
// same groups the analyzer will, or name drift across variants ("Netflix",
// "Netflix Inc") could prune history the full pipeline classifies.
func (s *Service) candidateMerchants(aggregates []transactiondomain.MerchantAggregate) []string {
	type mergedAggregate struct {
		txCount   int
		firstDate time.Time
		lastDate  time.Time
		merchants []string
	}
	byKey := make(map[string]*mergedAggregate)
	var order []string
	for _, agg := range aggregates {
		key := cadence.NormalizeMerchant(agg.MerchantName)
		merged, ok := byKey[key]
		if !ok {
			merged = &mergedAggregate{firstDate: agg.FirstDate, lastDate: agg.LastDate}
			byKey[key] = merged
			order = append(order, key)
		}
		merged.txCount += agg.TxCount
		if agg.FirstDate.Before(merged.firstDate) {
			merged.firstDate = agg.FirstDate
		}
		if agg.LastDate.After(merged.lastDate) {
			merged.lastDate = agg.LastDate
		}
		merged.merchants = append(merged.merchants, agg.MerchantName)
	}

	minSpan := time.Duration(s.cfg.MinSpanDays) * 24 * time.Hour
	var merchants []string
	for _, key := range order {
		merged := byKey[key]
		if merged.txCount < s.cfg.Cadence.MinTransactions {
			continue
		}
		if merged.lastDate.Sub(merged.firstDate) < minSpan {
			continue
		}
		merchants = append(merchants, merged.merchants...)
	}
	return merchants
}

// groupByMerchant buckets transactions by normalized merchant key and drops
// groups below the analysis floor. Input order does not matter; each group is
// sorted by charge date before analysis.
func (s *Service) groupByMerchant(transactions []transactiondomain.Transaction) []merchantGroup {
	byKey := make(map[string]*merchantGroup)
	order := make([]string, 0)
	for _, transaction := range transactions {
		name := transaction.DisplayName()
		key := cadence.NormalizeMerchant(name)
		group, ok := byKey[key]
		if !ok {
			group = &merchantGroup{Key: key}
			byKey[key] = group
			order = append(order, key)
		}
		group.Transactions = append(group.Transactions, transaction)
	}

	groups := make([]merchantGroup, 0, len(byKey))
	for _, key := range order {
		group := byKey[key]
		if len(group.Transactions) < s.cfg.Cadence.MinTransactions {
			continue
		}
		sort.Slice(group.Transactions, func(i, j int) bool {
			return group.Transactions[i].TransactionDate.Before(group.Transactions[j].TransactionDate)
		})
		group.DisplayName = group.Transactions[len(group.Transactions)-1].DisplayName()
		groups = append(groups, *group)
	}
	return groups
}

// analyzeGroup runs the cadence heuristics over one merchant's history. A nil
// return means no billing cadence fit the intervals at all.
func (s *Service) analyzeGroup(group merchantGroup) *detectiondomain.DetectionResult {
	transactions := group.Transactions
	dates := make([]time.Time, 0, len(transactions))
	amounts := make([]float64, 0, len(transactions))
	ids := make([]snowflake.ID, 0, len(transactions))
	var total float64
	for _, transaction := range transactions {
		dates = append(dates, transaction.TransactionDate)
		amounts = append(amounts, transaction.Amount)
		ids = append(ids, transaction.ID)
		total += transaction.Amount
	}

	intervals := cadence.Intervals(dates)
	match, ok := cadence.DetectFrequency(intervals, s.cfg.Cadence)
	if !ok {
		return nil
	}

	amountScore := cadence.AmountConsistency(amounts, s.cfg.Cadence)
	confidence := cadence.CombineConfidence(match.Confidence, amountScore, len(transactions), s.cfg.Cadence)

	last := dates[len(dates)-1]
	next := cadence.NextBillingDate(last, match.Frequency)
	frequency := match.Frequency

	return &detectiondomain.DetectionResult{
		MerchantName:   group.DisplayName,
		NormalizedKey:  group.Key,
		IsSubscription: confidence >= s.cfg.Cadence.MinConfidence,
		Confidence:     confidence,
		Frequency:      &frequency,
		AverageAmount:  total / float64(len(transactions)),
		NextBilling:    &next,
		LastBilling:    last,
		TransactionIDs: ids,
	}
}
