package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeMerchant(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"lowercases", "Netflix", "netflix"},
		{"strips corporate suffix", "NETFLIX INC", "netflix"},
		{"strips stacked suffixes", "Acme Company Inc", "acme"},
		{"strips trailing reference", "SPOTIFY *8831", "spotify"},
		{"collapses whitespace", "  Amazon   Prime  ", "amazon prime"},
		{"keeps inner suffix word", "Co Working Space", "co working space"},
		{"short result falls back to original", "Io Inc", "Io Inc"},
		{"empty stays empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeMerchant(tc.raw))
		})
	}
}

func TestNormalizeMerchantGroupsVariants(t *testing.T) {
	variants := []string{"Netflix", "NETFLIX", "Netflix Inc", "netflix *4417"}
	for _, v := range variants {
		assert.Equal(t, "netflix", NormalizeMerchant(v), "variant %q", v)
	}
}

func TestIntervals(t *testing.T) {
	dates := []time.Time{
		date(2024, time.January, 1),
		date(2024, time.February, 1),
		date(2024, time.March, 3),
	}
	got := Intervals(dates)
	require.Equal(t, []float64{31, 31}, got)

	assert.Nil(t, Intervals(dates[:1]))
}

func TestDetectFrequencyMonthly(t *testing.T) {
	cfg := DefaultConfig()
	match, ok := DetectFrequency([]float64{31, 31}, cfg)
	require.True(t, ok)
	assert.Equal(t, Monthly, match.Frequency)
	assert.InDelta(t, 1.0, match.Confidence, 1e-9)
}

func TestDetectFrequencyPrefersEarlierWindow(t *testing.T) {
	cfg := DefaultConfig()
	// 7-day gaps are weekly even though a sparse biweekly read might fit.
	match, ok := DetectFrequency([]float64{7, 7, 7}, cfg)
	require.True(t, ok)
	assert.Equal(t, Weekly, match.Frequency)
}

func TestDetectFrequencyRejectsIrregularGaps(t *testing.T) {
	cfg := DefaultConfig()
	// One interval matches weekly, one matches nothing: ratio 0.5 < 0.6.
	_, ok := DetectFrequency([]float64{9, 200}, cfg)
	assert.False(t, ok)
}

func TestDetectFrequencyJitterDragsConfidence(t *testing.T) {
	cfg := DefaultConfig()
	steady, ok := DetectFrequency([]float64{30, 30, 30}, cfg)
	require.True(t, ok)
	jittery, ok := DetectFrequency([]float64{26, 34, 30}, cfg)
	require.True(t, ok)
	assert.Less(t, jittery.Confidence, steady.Confidence)
}

func TestNextBillingDate(t *testing.T) {
	last := date(2024, time.March, 15)
	assert.Equal(t, date(2024, time.March, 22), NextBillingDate(last, Weekly))
	assert.Equal(t, date(2024, time.March, 29), NextBillingDate(last, Biweekly))
	assert.Equal(t, date(2024, time.April, 15), NextBillingDate(last, Monthly))
	assert.Equal(t, date(2024, time.June, 15), NextBillingDate(last, Quarterly))
	assert.Equal(t, date(2025, time.March, 15), NextBillingDate(last, Yearly))
}

func TestAmountConsistencySingleAmount(t *testing.T) {
	assert.Equal(t, 1.0, AmountConsistency([]float64{15.99}, DefaultConfig()))
}

func TestAmountConsistencyWithinTolerance(t *testing.T) {
	cfg := DefaultConfig()
	got := AmountConsistency([]float64{9.99, 10.05, 9.95}, cfg)
	assert.Equal(t, cfg.SteadyAmountScore, got)
}

func TestAmountConsistencyVolatileAmounts(t *testing.T) {
	cfg := DefaultConfig()
	got := AmountConsistency([]float64{10, 50, 90}, cfg)
	assert.Less(t, got, 0.5)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestCombineConfidenceMonthlyVector(t *testing.T) {
	cfg := DefaultConfig()
	// Three steady monthly charges: 0.5*1.0 + 0.3*0.95 + 0.2*(3/12).
	got := CombineConfidence(1.0, 0.95, 3, cfg)
	assert.InDelta(t, 0.835, got, 1e-9)
	assert.GreaterOrEqual(t, got, cfg.MinConfidence)
}

func TestCombineConfidenceCountCap(t *testing.T) {
	cfg := DefaultConfig()
	atCap := CombineConfidence(1.0, 1.0, cfg.CountCap, cfg)
	overCap := CombineConfidence(1.0, 1.0, cfg.CountCap*3, cfg)
	assert.Equal(t, atCap, overCap)
	assert.InDelta(t, 1.0, atCap, 1e-9)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{MinTransactions: 4}.WithDefaults()
	assert.Equal(t, 4, cfg.MinTransactions)
	assert.Equal(t, DefaultConfig().MatchThreshold, cfg.MatchThreshold)
	assert.Len(t, cfg.Windows, 5)
}
