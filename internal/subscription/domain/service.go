package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	detectiondomain "github.com/smallbiznis/recurra/internal/detection/domain"
)

// ReconcileSummary counts the outcome of one reconcile batch.
type ReconcileSummary struct {
	Created int
	Updated int
	Skipped int
	Errors  int
}

// Categorization is the categorization collaborator's answer.
type Categorization struct {
	Category   string
	Confidence float64
}

// CategorizeRequest identifies the subscription to label.
type CategorizeRequest struct {
	SubscriptionID snowflake.ID
	UserID         snowflake.ID
	MerchantName   string
}

// Categorizer is the external categorization collaborator. Failures are
// logged by the caller and never roll back subscription writes.
type Categorizer interface {
	Categorize(ctx context.Context, req CategorizeRequest) (Categorization, error)
}

type Service interface {
	// ReconcileDetections maps confident detection results onto subscription
	// records: create, update-in-place, or reactivate. Per-merchant failures
	// are counted and skipped.
	ReconcileDetections(ctx context.Context, userID snowflake.ID, results []detectiondomain.DetectionResult) (ReconcileSummary, error)
	// Deduplicate merges a user's active subscriptions that normalize to the
	// same merchant key, returning how many records were removed.
	Deduplicate(ctx context.Context, userID snowflake.ID) (int, error)
	// FindMatch locates an existing subscription for a detected merchant name
	// using the exact, case-insensitive, then fuzzy-token strategies.
	FindMatch(ctx context.Context, userID snowflake.ID, name string) (*Match, error)
}

var (
	ErrSubscriptionNotFound   = errors.New("subscription_not_found")
	ErrCategorizationDisabled = errors.New("categorization_disabled")
)
