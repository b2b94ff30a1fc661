package scheduler

import (
	"context"

	"github.com/smallbiznis/recurra/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(NewLocker),
	fx.Provide(New),
	fx.Invoke(Run),
)

// ProvideConfig maps the application config onto the sweep-loop tunables.
// Unset values fall back to the scheduler defaults.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:   cfg.Scheduler.RunInterval,
		RunTimeout:    cfg.Scheduler.RunTimeout,
		UserBatchSize: cfg.Scheduler.UserBatchSize,
		LookbackDays:  cfg.Scheduler.LookbackDays,
		LockTTL:       cfg.Scheduler.LockTTL,
	}
}

func Run(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
