package reputation

import (
	"math"
	"time"

	"proxypool/internal/domain"
)

// Weights of the composite score, in points out of 100.
type Weights struct {
	SuccessRate float64
	Latency     float64
	Stability   float64
	Recency     float64
}

var defaultWeights = Weights{
	SuccessRate: 40,
	Latency:     30,
	Stability:   20,
	Recency:     10,
}

const (
	// MinScore and MaxScore bound every composite score.
	MinScore = 0.0
	MaxScore = 100.0

	latencyCeilingSeconds = 10.0
	stabilityMaxStreak    = 5.0
	recencyDecayHours     = 24.0
)

// Thresholds parameterize the validity predicate.
type Thresholds struct {
	ValidityScore   float64
	FreshnessWindow time.Duration
}

var DefaultThresholds = Thresholds{
	ValidityScore:   60,
	FreshnessWindow: time.Hour,
}

// Score derives the bounded composite quality score of a record:
// success rate, latency falloff to a 10s ceiling, stability falloff over
// five consecutive failures, and decay since the last success over 24h.
// A record that has never been probed scores zero.
func Score(record *domain.Record, now time.Time) float64 {
	return ScoreWeighted(record, now, defaultWeights)
}

func ScoreWeighted(record *domain.Record, now time.Time, w Weights) float64 {
	if record.TotalRequests == 0 {
		return MinScore
	}

	successScore := w.SuccessRate * record.SuccessRate
	latencyScore := w.Latency * (1 - math.Min(record.AvgResponseTime/latencyCeilingSeconds, 1))
	stabilityScore := w.Stability * (1 - math.Min(float64(record.ConsecutiveFailedTimes)/stabilityMaxStreak, 1))

	recencyScore := w.Recency
	if record.LastSuccessTime != nil {
		hours := now.Sub(*record.LastSuccessTime).Hours()
		recencyScore *= math.Max(0, 1-hours/recencyDecayHours)
	}

	return clamp(successScore+latencyScore+stabilityScore+recencyScore, MinScore, MaxScore)
}

// IsValid is the validity predicate deciding whether a record stays in the
// pool. Pure and side-effect free; the cleaner is its only write-side
// consumer.
func IsValid(record *domain.Record, now time.Time, th Thresholds) bool {
	if record.Status == domain.StatusFailed || record.Status == domain.StatusBanned {
		return false
	}
	if now.Sub(record.LastCheckTime) >= th.FreshnessWindow {
		return false
	}
	return Score(record, now) >= th.ValidityScore
}

// Reliability blends window stability (coefficient of variation), the
// fraction of non-anomalous samples and exponential recency decay into a
// [0,1] figure over the most recent windowSize latencies.
func Reliability(record *domain.Record, now time.Time, windowSize int) float64 {
	if len(record.ResponseTimes) == 0 {
		return 0
	}

	window := record.ResponseTimes
	if windowSize > 0 && len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}

	stability := 0.0
	if m := mean(window); m > 0 {
		stability = clamp(1-stddev(window)/m, 0, 1)
	}

	flags := DetectAnomalies(window, 2.0)
	anomalous := 0
	for _, flagged := range flags {
		if flagged {
			anomalous++
		}
	}
	normalRatio := 1 - float64(anomalous)/float64(len(window))

	decay := 0.0
	if record.LastSuccessTime != nil {
		hours := now.Sub(*record.LastSuccessTime).Hours()
		decay = math.Exp(-hours / recencyDecayHours)
	}

	return stability*0.4 + normalRatio*0.4 + decay*0.2
}

// DetectAnomalies flags samples whose z-score magnitude exceeds the
// threshold. With fewer than two samples the z-score is undefined and
// nothing is flagged.
func DetectAnomalies(samples []float64, threshold float64) []bool {
	flags := make([]bool, len(samples))
	if len(samples) < 2 {
		return flags
	}
	m := mean(samples)
	sd := stddev(samples)
	if sd == 0 {
		return flags
	}
	for i, sample := range samples {
		if math.Abs((sample-m)/sd) > threshold {
			flags[i] = true
		}
	}
	return flags
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, sample := range samples {
		sum += sample
	}
	return sum / float64(len(samples))
}

// stddev is the sample standard deviation (n-1 denominator), matching the
// estimator the confidence interval uses.
func stddev(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	m := mean(samples)
	sum := 0.0
	for _, sample := range samples {
		diff := sample - m
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(samples)-1))
}
