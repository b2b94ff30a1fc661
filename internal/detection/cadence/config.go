// Package cadence holds the pure pattern-detection rules for recurring charges:
// merchant normalization, billing-interval classification, amount consistency
// and confidence scoring. Nothing here touches storage or the network.
package cadence

// Config collects the detection tunables. Zero values fall back to defaults,
// so callers can override a single knob without restating the rest.
type Config struct {
	// MinTransactions is the smallest group size worth analyzing.
	MinTransactions int
	// MinConfidence is the classification bar for isSubscription.
	MinConfidence float64
	// MatchThreshold is the interval match ratio a window must reach.
	MatchThreshold float64
	// AmountTolerance is the relative band around the mean amount.
	AmountTolerance float64
	// AmountBandShare is the share of amounts that must sit inside the band.
	AmountBandShare float64
	// SteadyAmountScore is returned when the band share is met.
	SteadyAmountScore float64
	// CountCap caps the sample-size bonus in the combined score.
	CountCap int

	Windows []Window
}

func DefaultConfig() Config {
	return Config{
		MinTransactions:   2,
		MinConfidence:     0.5,
		MatchThreshold:    0.6,
		AmountTolerance:   0.05,
		AmountBandShare:   0.8,
		SteadyAmountScore: 0.95,
		CountCap:          12,
		Windows:           DefaultWindows(),
	}
}

func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	if c.MinTransactions <= 0 {
		c.MinTransactions = defaults.MinTransactions
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = defaults.MinConfidence
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = defaults.MatchThreshold
	}
	if c.AmountTolerance <= 0 {
		c.AmountTolerance = defaults.AmountTolerance
	}
	if c.AmountBandShare <= 0 {
		c.AmountBandShare = defaults.AmountBandShare
	}
	if c.SteadyAmountScore <= 0 {
		c.SteadyAmountScore = defaults.SteadyAmountScore
	}
	if c.CountCap <= 0 {
		c.CountCap = defaults.CountCap
	}
	if len(c.Windows) == 0 {
		c.Windows = defaults.Windows
	}
	return c
}
