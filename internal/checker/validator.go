// Package checker is the validation engine: it confirms liveness of proxy
// records against target URLs under bounded concurrency and folds every
// probe outcome into the records' rolling statistics.
package checker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"proxypool/internal/domain"
)

type Config struct {
	TestURLs       []string
	Timeout        time.Duration
	Retries        int
	Concurrency    int64
	RetryBackoff   time.Duration
	MinSuccessRate float64
}

func DefaultConfig() Config {
	return Config{
		TestURLs: []string{
			"http://httpbin.org/ip",
			"http://api.ipify.org?format=json",
			"https://www.qq.com",
		},
		Timeout:        5 * time.Second,
		Retries:        3,
		Concurrency:    20,
		RetryBackoff:   time.Second,
		MinSuccessRate: 0.3,
	}
}

// ResultHook receives every individual probe outcome, dead or alive.
// Hooks must not block; the runtime archive feeds a buffered channel.
type ResultHook func(domain.ProbeStatistic)

type Validator struct {
	cfg      Config
	sem      *semaphore.Weighted
	onResult ResultHook
}

func New(cfg Config) *Validator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultConfig().Retries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Validator{
		cfg: cfg,
		sem: semaphore.NewWeighted(cfg.Concurrency),
	}
}

func (v *Validator) SetResultHook(hook ResultHook) {
	v.onResult = hook
}

// Validate probes every record against testURL (the first configured
// target when empty) and returns the subset confirmed live, mutated in
// place. Completion order across records is unspecified; treat the result
// as unordered. One record's failures never abort the batch.
func (v *Validator) Validate(ctx context.Context, records []*domain.Record, testURL string) []*domain.Record {
	if len(records) == 0 {
		return nil
	}
	if testURL == "" {
		if len(v.cfg.TestURLs) == 0 {
			log.Error("no test URLs configured")
			return nil
		}
		testURL = v.cfg.TestURLs[0]
	}

	var (
		mu        sync.Mutex
		confirmed []*domain.Record
		wg        sync.WaitGroup
	)

	for _, record := range records {
		if err := v.sem.Acquire(ctx, 1); err != nil {
			break // cancelled; in-flight probes run out their own timeouts
		}

		wg.Add(1)
		go func(record *domain.Record) {
			defer wg.Done()
			defer v.sem.Release(1)

			if v.validateOne(ctx, record, testURL) {
				mu.Lock()
				confirmed = append(confirmed, record)
				mu.Unlock()
			}
		}(record)
	}
	wg.Wait()

	log.Info("validation pass complete",
		"target", testURL,
		"checked", len(records),
		"alive", len(confirmed),
	)
	return confirmed
}

// validateOne runs the per-record attempt loop: up to Retries probes with
// a constant backoff between failed attempts, returning on the first
// success. Every attempt, successful or not, updates the record's
// statistics.
func (v *Validator) validateOne(ctx context.Context, record *domain.Record, testURL string) bool {
	attempt := func() error {
		latency, statusCode, err := probe(ctx, record, testURL, v.cfg.Timeout)

		alive := err == nil
		record.UpdateStats(alive, latency, statusCode)
		v.emit(record, alive, latency, statusCode)

		if err != nil {
			log.Debug("probe failed", "proxy", record.Key(), "target", testURL, "error", err)
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(v.cfg.RetryBackoff),
			uint64(v.cfg.Retries-1),
		),
		ctx,
	)
	return backoff.Retry(attempt, policy) == nil
}

// BatchValidate repeats validation across the rotating target set with
// union semantics: a record confirmed live against at least one target
// stays in, then the min-success-rate floor is applied as a final filter.
func (v *Validator) BatchValidate(ctx context.Context, records []*domain.Record) []*domain.Record {
	if len(records) == 0 {
		return nil
	}

	targets := v.liveTargets(ctx)
	if len(targets) == 0 {
		log.Error("no reachable test URLs, skipping batch validation")
		return nil
	}

	confirmed := make(map[string]*domain.Record)
	for _, target := range targets {
		for _, record := range v.Validate(ctx, records, target) {
			confirmed[record.Key()] = record
		}
		if ctx.Err() != nil {
			break
		}
	}

	final := make([]*domain.Record, 0, len(confirmed))
	for _, record := range confirmed {
		if record.SuccessRate >= v.cfg.MinSuccessRate {
			final = append(final, record)
		}
	}

	log.Info("batch validation complete",
		"targets", len(targets),
		"checked", len(records),
		"alive", len(final),
	)
	return final
}

// liveTargets health-checks every configured target directly (no proxy)
// and drops unreachable ones for this pass, so a broken test target does
// not read as a wave of dead proxies.
func (v *Validator) liveTargets(ctx context.Context) []string {
	targets := make([]string, 0, len(v.cfg.TestURLs))
	for _, target := range v.cfg.TestURLs {
		if v.CheckTestURL(ctx, target) {
			targets = append(targets, target)
		} else {
			log.Warn("test URL unreachable, dropping from rotation", "target", target)
		}
	}
	return targets
}

// CheckTestURL probes a target without any proxy in between.
func (v *Validator) CheckTestURL(ctx context.Context, target string) bool {
	client := &http.Client{Timeout: v.cfg.Timeout}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest
}

func (v *Validator) emit(record *domain.Record, alive bool, latency time.Duration, statusCode int) {
	if v.onResult == nil {
		return
	}
	v.onResult(domain.ProbeStatistic{
		ProxyKey:       record.Key(),
		Protocol:       record.Protocol,
		Alive:          alive,
		ResponseTimeMS: int32(latency.Milliseconds()),
		StatusCode:     int16(statusCode),
		Country:        record.Tags["country"],
	})
}
