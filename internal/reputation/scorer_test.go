package reputation

import (
	"math"
	"testing"
	"time"

	"proxypool/internal/domain"
)

func probedRecord(t *testing.T, successRate, avgResponseTime float64, streak int, lastSuccess time.Time) *domain.Record {
	t.Helper()
	record, err := domain.NewRecord("10.0.0.1", 8080, domain.ProtocolHTTP, "test")
	if err != nil {
		t.Fatalf("NewRecord returned error: %v", err)
	}
	record.TotalRequests = 20
	record.SuccessRate = successRate
	record.AvgResponseTime = avgResponseTime
	record.ConsecutiveFailedTimes = streak
	record.LastCheckTime = time.Now()
	if !lastSuccess.IsZero() {
		record.LastSuccessTime = &lastSuccess
	}
	record.Status = domain.StatusActive
	return record
}

func TestScoreNeverProbedIsZero(t *testing.T) {
	record, err := domain.NewRecord("10.0.0.1", 8080, domain.ProtocolHTTP, "test")
	if err != nil {
		t.Fatalf("NewRecord returned error: %v", err)
	}

	if got := Score(record, time.Now()); got != 0 {
		t.Fatalf("Score returned %v for an unprobed record, want 0", got)
	}
}

func TestScorePerfectRecord(t *testing.T) {
	now := time.Now()
	record := probedRecord(t, 1.0, 0, 0, now)

	if got := Score(record, now); math.Abs(got-100) > 1e-9 {
		t.Fatalf("Score returned %v for a perfect record, want 100", got)
	}
}

func TestScoreComponentValues(t *testing.T) {
	now := time.Now()
	// 40*0.5 + 30*(1-5/10) + 20*(1-2/5) + 10*(1-12/24) = 20+15+12+5.
	record := probedRecord(t, 0.5, 5.0, 2, now.Add(-12*time.Hour))

	if got := Score(record, now); math.Abs(got-52) > 1e-6 {
		t.Fatalf("Score returned %v, want 52", got)
	}
}

func TestScoreComponentFloors(t *testing.T) {
	now := time.Now()

	// Latency beyond the 10s ceiling contributes nothing.
	slow := probedRecord(t, 1.0, 25.0, 0, now)
	if got := Score(slow, now); math.Abs(got-70) > 1e-6 {
		t.Fatalf("Score returned %v for a 25s-average record, want 70", got)
	}

	// A streak at or past 5 zeroes stability; success 2 days ago zeroes recency.
	broken := probedRecord(t, 1.0, 0, 8, now.Add(-48*time.Hour))
	if got := Score(broken, now); math.Abs(got-70) > 1e-6 {
		t.Fatalf("Score returned %v for a broken-streak record, want 70", got)
	}

	// Recency keeps its full weight until a success timestamp exists.
	fresh := probedRecord(t, 1.0, 0, 0, time.Time{})
	if got := Score(fresh, now); math.Abs(got-100) > 1e-6 {
		t.Fatalf("Score returned %v without a last-success timestamp, want 100", got)
	}
}

func TestScoreMonotonicInSuccessRate(t *testing.T) {
	now := time.Now()
	previous := -1.0
	for rate := 0.0; rate <= 1.0; rate += 0.25 {
		got := Score(probedRecord(t, rate, 1.0, 0, now), now)
		if got <= previous {
			t.Fatalf("Score %v at rate %v is not greater than %v at the lower rate", got, rate, previous)
		}
		previous = got
	}
}

func TestIsValid(t *testing.T) {
	now := time.Now()
	th := DefaultThresholds

	healthy := probedRecord(t, 1.0, 0.5, 0, now)
	if !IsValid(healthy, now, th) {
		t.Fatalf("IsValid rejected a healthy record scoring %v", Score(healthy, now))
	}

	failed := probedRecord(t, 1.0, 0.5, 0, now)
	failed.Status = domain.StatusFailed
	if IsValid(failed, now, th) {
		t.Fatal("IsValid accepted a failed record")
	}

	banned := probedRecord(t, 1.0, 0.5, 0, now)
	banned.Status = domain.StatusBanned
	if IsValid(banned, now, th) {
		t.Fatal("IsValid accepted a banned record")
	}

	stale := probedRecord(t, 1.0, 0.5, 0, now)
	stale.LastCheckTime = now.Add(-2 * time.Hour)
	if IsValid(stale, now, th) {
		t.Fatal("IsValid accepted a record checked 2h ago with a 1h freshness window")
	}

	weak := probedRecord(t, 0.2, 9.0, 4, now.Add(-23*time.Hour))
	if IsValid(weak, now, th) {
		t.Fatalf("IsValid accepted a record scoring %v, threshold %v", Score(weak, now), th.ValidityScore)
	}
}

func TestDetectAnomalies(t *testing.T) {
	samples := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 100}
	flags := DetectAnomalies(samples, 2.0)

	for i := 0; i < 9; i++ {
		if flags[i] {
			t.Fatalf("sample %d flagged as anomalous, want normal", i)
		}
	}
	if !flags[9] {
		t.Fatal("outlier sample not flagged")
	}
}

func TestDetectAnomaliesDegenerateInputs(t *testing.T) {
	if flags := DetectAnomalies([]float64{5}, 2.0); flags[0] {
		t.Fatal("single sample flagged; z-score is undefined for one sample")
	}

	for i, flagged := range DetectAnomalies([]float64{3, 3, 3, 3}, 2.0) {
		if flagged {
			t.Fatalf("identical sample %d flagged with zero deviation", i)
		}
	}
}

func TestReliabilityBounds(t *testing.T) {
	record := probedRecord(t, 1.0, 0.5, 0, time.Now())
	if got := Reliability(record, time.Now(), 10); got != 0 {
		t.Fatalf("Reliability returned %v with no latency samples, want 0", got)
	}

	record.ResponseTimes = []float64{0.5, 0.5, 0.5, 0.5, 0.5}
	got := Reliability(record, time.Now(), 10)
	if got < 0 || got > 1 {
		t.Fatalf("Reliability returned %v, want a value in [0,1]", got)
	}
	// Perfectly stable window with a just-now success scores near the top.
	if got < 0.95 {
		t.Fatalf("Reliability returned %v for a stable fresh record, want >= 0.95", got)
	}
}

func TestReliabilityWindowSlicing(t *testing.T) {
	now := time.Now()
	record := probedRecord(t, 1.0, 0.5, 0, now)
	// Old noisy samples followed by a stable recent window.
	record.ResponseTimes = []float64{9, 0.1, 7, 0.2, 0.5, 0.5, 0.5, 0.5}

	windowed := Reliability(record, now, 4)
	full := Reliability(record, now, 0)
	if windowed <= full {
		t.Fatalf("windowed reliability %v not above full-history %v despite stable tail", windowed, full)
	}
}

func TestConfidenceInterval(t *testing.T) {
	low, high := ConfidenceInterval(nil, 0.95)
	if low != 0 || high != 0 {
		t.Fatalf("ConfidenceInterval returned [%v, %v] for no samples, want [0, 0]", low, high)
	}

	low, high = ConfidenceInterval([]float64{0.7}, 0.95)
	if low != 0.7 || high != 0.7 {
		t.Fatalf("ConfidenceInterval returned [%v, %v] for one sample, want the point estimate", low, high)
	}

	low, high = ConfidenceInterval([]float64{0.5, 0.5, 0.5, 0.5}, 0.95)
	if math.Abs(low-0.5) > 1e-9 || math.Abs(high-0.5) > 1e-9 {
		t.Fatalf("ConfidenceInterval returned [%v, %v] with zero variance, want [0.5, 0.5]", low, high)
	}

	samples := []float64{0.2, 0.4, 0.6, 0.8, 1.0}
	low, high = ConfidenceInterval(samples, 0.95)
	if low < 0 || high > 1 {
		t.Fatalf("ConfidenceInterval [%v, %v] escaped [0, 1]", low, high)
	}
	if low >= 0.6 || high <= 0.6 {
		t.Fatalf("ConfidenceInterval [%v, %v] does not contain the sample mean 0.6", low, high)
	}

	narrowLow, narrowHigh := ConfidenceInterval(samples, 0.80)
	if narrowHigh-narrowLow >= high-low {
		t.Fatalf("80%% interval [%v, %v] not narrower than 95%% interval [%v, %v]",
			narrowLow, narrowHigh, low, high)
	}
}

func TestNormalQuantile(t *testing.T) {
	if got := normalQuantile(0.975); math.Abs(got-1.959964) > 1e-4 {
		t.Fatalf("normalQuantile(0.975) returned %v, want 1.959964", got)
	}
	if got := normalQuantile(0.5); math.Abs(got) > 1e-9 {
		t.Fatalf("normalQuantile(0.5) returned %v, want 0", got)
	}
	if got := normalQuantile(0.025); math.Abs(got+1.959964) > 1e-4 {
		t.Fatalf("normalQuantile(0.025) returned %v, want -1.959964", got)
	}
}
