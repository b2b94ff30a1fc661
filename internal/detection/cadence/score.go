package cadence

import "math"

// AmountConsistency measures how stable the charge amount is across a group.
//
// A single amount is perfectly consistent. When most amounts sit inside the
// relative tolerance band around the mean, a fixed high score is returned so
// currency-conversion and tax jitter is not penalized. Otherwise the score
// falls back to a coefficient-of-variation penalty.
func AmountConsistency(amounts []float64, cfg Config) float64 {
	if len(amounts) <= 1 {
		return 1.0
	}

	avg := mean(amounts)
	if avg == 0 {
		return 0
	}

	within := 0
	for _, a := range amounts {
		if math.Abs(a-avg) <= cfg.AmountTolerance*math.Abs(avg) {
			within++
		}
	}
	if float64(within)/float64(len(amounts)) >= cfg.AmountBandShare {
		return cfg.SteadyAmountScore
	}

	cv := math.Sqrt(populationVariance(amounts, avg)) / math.Abs(avg)
	return math.Max(0, 1-2*cv)
}

// CombineConfidence folds cadence regularity, amount stability and sample size
// into the single classification score. The count term rewards longer
// histories, capped at CountCap observations.
func CombineConfidence(frequencyConfidence, amountConsistency float64, count int, cfg Config) float64 {
	countScore := math.Min(float64(count)/float64(cfg.CountCap), 1)
	return 0.5*frequencyConfidence + 0.3*amountConsistency + 0.2*countScore
}
