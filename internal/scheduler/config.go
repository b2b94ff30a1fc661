package scheduler

import (
	"time"
)

// Config controls the detection run loop.
type Config struct {
	// RunInterval is the pause between sweeps over active users.
	RunInterval time.Duration
	// RunTimeout bounds one user's detection run.
	RunTimeout time.Duration
	// UserBatchSize caps how many users one sweep picks up.
	UserBatchSize int
	// LookbackDays bounds the activity window used to select users.
	LookbackDays int
	// LockTTL is the advisory lock lifetime per user run.
	LockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   10 * time.Minute,
		RunTimeout:    2 * time.Minute,
		UserBatchSize: 100,
		LookbackDays:  365,
		LockTTL:       5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.UserBatchSize <= 0 {
		c.UserBatchSize = defaults.UserBatchSize
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaults.LookbackDays
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
