package detection

import (
	"testing"

	"github.com/smallbiznis/recurra/internal/config"
	detectiondomain "github.com/smallbiznis/recurra/internal/detection/domain"
	"github.com/stretchr/testify/assert"
)

func TestProvideConfigMapsTunables(t *testing.T) {
	cfg := ProvideConfig(config.Config{
		Detection: config.DetectionConfig{
			LookbackDays:    180,
			MinSpanDays:     45,
			PeerLimit:       6,
			AnalysisWorkers: 8,
			MinTransactions: 3,
			MinConfidence:   0.7,
			MatchThreshold:  0.75,
		},
	})

	assert.Equal(t, 180, cfg.LookbackDays)
	assert.Equal(t, 45, cfg.MinSpanDays)
	assert.Equal(t, 6, cfg.PeerLimit)
	assert.Equal(t, 8, cfg.AnalysisWorkers)
	assert.Equal(t, 3, cfg.Cadence.MinTransactions)
	assert.InDelta(t, 0.7, cfg.Cadence.MinConfidence, 1e-9)
	assert.InDelta(t, 0.75, cfg.Cadence.MatchThreshold, 1e-9)
}

func TestProvideConfigUnsetFallsBackToDefaults(t *testing.T) {
	cfg := ProvideConfig(config.Config{}).WithDefaults()
	assert.Equal(t, detectiondomain.DefaultConfig(), cfg)
}
