// Package domain defines the detection pipeline contracts: the per-merchant
// detection result, run configuration and the engine service interface.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurra/internal/detection/cadence"
)

// DetectionResult is the outcome of analyzing one merchant group.
type DetectionResult struct {
	MerchantName   string
	NormalizedKey  string
	IsSubscription bool
	Confidence     float64
	Frequency      *cadence.Frequency
	AverageAmount  float64
	NextBilling    *time.Time
	LastBilling    time.Time
	TransactionIDs []snowflake.ID
}

// RunSummary aggregates one user's detection run for callers to report.
type RunSummary struct {
	UserID              snowflake.ID
	MerchantsConsidered int
	MerchantsAnalyzed   int
	Detected            int
	Created             int
	Updated             int
	Skipped             int
	Errors              int
	DedupMerged         int
	Duration            time.Duration
}

// Config controls one detection run. Heuristic tunables live in the embedded
// cadence config; the rest shapes the data the pipeline loads.
type Config struct {
	Cadence cadence.Config

	// LookbackDays bounds how much history the prefilter scans.
	LookbackDays int
	// MinSpanDays is the prefilter's minimum first-to-last charge distance.
	MinSpanDays int
	// PeerLimit caps the peer set on the single-transaction path.
	PeerLimit int
	// AnalysisWorkers bounds the parallel analysis stage.
	AnalysisWorkers int
}

func DefaultConfig() Config {
	return Config{
		Cadence:         cadence.DefaultConfig(),
		LookbackDays:    365,
		MinSpanDays:     30,
		PeerLimit:       12,
		AnalysisWorkers: 4,
	}
}

func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	c.Cadence = c.Cadence.WithDefaults()
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaults.LookbackDays
	}
	if c.MinSpanDays <= 0 {
		c.MinSpanDays = defaults.MinSpanDays
	}
	if c.PeerLimit <= 0 {
		c.PeerLimit = defaults.PeerLimit
	}
	if c.AnalysisWorkers <= 0 {
		c.AnalysisWorkers = defaults.AnalysisWorkers
	}
	return c
}

type Service interface {
	// RunForUser executes the full pipeline for one user: prefilter, group,
	// analyze, flag write-back, reconcile, dedup.
	RunForUser(ctx context.Context, userID snowflake.ID) (RunSummary, error)
	// DetectForTransaction analyzes a single transaction against its most
	// recent same-merchant peers. A nil result means no detection.
	DetectForTransaction(ctx context.Context, id snowflake.ID) (*DetectionResult, error)
}

var (
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrInvalidUser         = errors.New("invalid_user")
)
