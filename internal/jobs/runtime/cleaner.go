package runtime

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"proxypool/internal/domain"
	"proxypool/internal/reputation"
	"proxypool/internal/store"
)

// BatchValidator is the slice of the validation engine the cleaner needs,
// kept narrow so tests can substitute a canned implementation.
type BatchValidator interface {
	BatchValidate(ctx context.Context, records []*domain.Record) []*domain.Record
}

// Cleaner evicts pool entries that fail the validity predicate after a
// re-validation pass, then decays the surviving scores so stale entries
// sink in the ranking between passes.
type Cleaner struct {
	store       store.Store
	validator   BatchValidator
	thresholds  reputation.Thresholds
	decayFactor float64

	// forget releases evicted keys from the fetcher's dedupe cache so a
	// later re-fetch of the same identity starts a fresh record.
	forget func(keys ...string)
}

func NewCleaner(poolStore store.Store, validator BatchValidator, thresholds reputation.Thresholds, decayFactor float64) *Cleaner {
	return &Cleaner{
		store:       poolStore,
		validator:   validator,
		thresholds:  thresholds,
		decayFactor: decayFactor,
	}
}

func (c *Cleaner) SetForgetFunc(forget func(keys ...string)) {
	c.forget = forget
}

// Clean re-validates every stored entry and removes the set difference:
// stored minus still-valid. The validity predicate is the sole eviction
// authority; confirmation by the re-validation pass alone is not enough
// for a record whose score or freshness has collapsed. Returns the
// removed count.
func (c *Cleaner) Clean(ctx context.Context) int {
	stored := c.store.GetAll(ctx)
	if len(stored) == 0 {
		return 0
	}

	confirmed := c.validator.BatchValidate(ctx, stored)

	now := time.Now()
	stillValid := make(map[string]struct{}, len(confirmed))
	for _, record := range confirmed {
		if reputation.IsValid(record, now, c.thresholds) {
			stillValid[record.Key()] = struct{}{}
		}
	}

	removed := 0
	var removedKeys []string
	for _, record := range stored {
		key := record.Key()
		if _, ok := stillValid[key]; ok {
			c.store.UpdateScore(ctx, record, reputation.Score(record, now))
			continue
		}
		if c.store.Remove(ctx, key) {
			removed++
			removedKeys = append(removedKeys, key)
		}
	}

	if c.forget != nil && len(removedKeys) > 0 {
		c.forget(removedKeys...)
	}

	if c.decayFactor > 0 && c.decayFactor < 1 {
		c.store.DecayScores(ctx, c.decayFactor)
	}

	log.Info("cleaning pass complete", "checked", len(stored), "removed", removed)
	return removed
}

// RunPeriodic runs cleaning passes forever at the given interval. A
// failed or empty pass is not special: the cleaner follows the same
// retry-forever policy as the main loop, sleeping the cooldown after an
// error instead of stopping itself.
func (c *Cleaner) RunPeriodic(ctx context.Context, interval, cooldown time.Duration) {
	for {
		passOK := func() (ok bool) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("cleaning pass panicked", "panic", r)
					ok = false
				}
			}()
			c.Clean(ctx)
			return true
		}()

		wait := interval
		if !passOK {
			wait = cooldown
		}
		if !sleepContext(ctx, wait) {
			return
		}
	}
}
