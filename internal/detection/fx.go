package detection

import (
	"github.com/smallbiznis/recurra/internal/config"
	"github.com/smallbiznis/recurra/internal/detection/cadence"
	detectiondomain "github.com/smallbiznis/recurra/internal/detection/domain"
	"github.com/smallbiznis/recurra/internal/detection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("detection",
	fx.Provide(
		ProvideConfig,
		service.NewService,
	),
)

// ProvideConfig maps the application config onto the detection tunables.
// Unset values fall back to the detection defaults.
func ProvideConfig(cfg config.Config) detectiondomain.Config {
	return detectiondomain.Config{
		Cadence: cadence.Config{
			MinTransactions: cfg.Detection.MinTransactions,
			MinConfidence:   cfg.Detection.MinConfidence,
			MatchThreshold:  cfg.Detection.MatchThreshold,
		},
		LookbackDays:    cfg.Detection.LookbackDays,
		MinSpanDays:     cfg.Detection.MinSpanDays,
		PeerLimit:       cfg.Detection.PeerLimit,
		AnalysisWorkers: cfg.Detection.AnalysisWorkers,
	}
}
