package cadence

import (
	"math"
	"time"
)

// Frequency names a supported billing cadence.
type Frequency string

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// Window is the accepted day-count range for one cadence. Windows are checked
// in slice order; the first one whose match ratio clears the threshold wins.
type Window struct {
	Frequency Frequency
	MinDays   float64
	MaxDays   float64
}

func DefaultWindows() []Window {
	return []Window{
		{Weekly, 5, 10},
		{Biweekly, 11, 17},
		{Monthly, 24, 38},
		{Quarterly, 75, 105},
		{Yearly, 340, 390},
	}
}

// Match is a successful cadence classification.
type Match struct {
	Frequency  Frequency
	Confidence float64
}

// Intervals returns the day gaps between adjacent dates. Dates must already be
// sorted ascending.
func Intervals(dates []time.Time) []float64 {
	if len(dates) < 2 {
		return nil
	}
	intervals := make([]float64, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		days := dates[i].Sub(dates[i-1]).Hours() / 24
		intervals = append(intervals, days)
	}
	return intervals
}

// DetectFrequency classifies the interval series against the configured
// windows. A single interval still participates; its match ratio is 0 or 1.
//
// Confidence is matchRatio * (1 - stddev/avg) over the matching intervals.
// The consistency term is intentionally not clamped to [0,1]: wildly irregular
// matching intervals drag the combined confidence down, sometimes below zero.
func DetectFrequency(intervals []float64, cfg Config) (Match, bool) {
	if len(intervals) == 0 {
		return Match{}, false
	}

	for _, w := range cfg.Windows {
		var matching []float64
		for _, d := range intervals {
			if d >= w.MinDays && d <= w.MaxDays {
				matching = append(matching, d)
			}
		}

		ratio := float64(len(matching)) / float64(len(intervals))
		if ratio < cfg.MatchThreshold {
			continue
		}

		avg := mean(matching)
		consistency := 1.0
		if avg > 0 {
			consistency = 1 - math.Sqrt(populationVariance(matching, avg))/avg
		}

		return Match{
			Frequency:  w.Frequency,
			Confidence: ratio * consistency,
		}, true
	}

	return Match{}, false
}

// NextBillingDate projects one cadence unit past the latest charge date.
func NextBillingDate(last time.Time, freq Frequency) time.Time {
	switch freq {
	case Weekly:
		return last.AddDate(0, 0, 7)
	case Biweekly:
		return last.AddDate(0, 0, 14)
	case Quarterly:
		return last.AddDate(0, 3, 0)
	case Yearly:
		return last.AddDate(1, 0, 0)
	default:
		return last.AddDate(0, 1, 0)
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationVariance(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - avg
		sumSq += d * d
	}
	return sumSq / float64(len(values))
}
