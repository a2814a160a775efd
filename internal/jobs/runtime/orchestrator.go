// Package runtime binds fetch, validate, score, store, decay and evict
// into the perpetual pool lifecycle.
package runtime

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"proxypool/internal/checker"
	"proxypool/internal/config"
	"proxypool/internal/domain"
	"proxypool/internal/fetcher"
	"proxypool/internal/geo"
	"proxypool/internal/reputation"
	"proxypool/internal/store"
)

type Orchestrator struct {
	cfg       config.Config
	store     store.Store
	validator *checker.Validator
	fetcher   *fetcher.Fetcher
	cleaner   *Cleaner
	geo       *geo.Resolver
}

func NewOrchestrator(
	cfg config.Config,
	poolStore store.Store,
	validator *checker.Validator,
	candidateFetcher *fetcher.Fetcher,
	cleaner *Cleaner,
	geoResolver *geo.Resolver,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     poolStore,
		validator: validator,
		fetcher:   candidateFetcher,
		cleaner:   cleaner,
		geo:       geoResolver,
	}
}

// Run cycles fetching, validating, storing, cleaning and sleeping until
// the context is cancelled. A failed cycle is logged and followed by the
// configured cooldown; the loop itself never gives up on mid-cycle
// errors. The inter-cycle sleep is the shutdown cancellation point;
// in-flight probes are bounded by their own timeouts instead of being
// forcibly cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info("pool orchestrator started",
		"fetch_interval", o.cfg.FetchInterval(),
		"cycle_cooldown", o.cfg.CycleCooldown(),
	)

	for {
		cycleID := uuid.NewString()[:8]

		if err := o.Cycle(ctx, cycleID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("cycle failed", "cycle", cycleID, "error", err)
			if !sleepContext(ctx, o.cfg.CycleCooldown()) {
				return ctx.Err()
			}
			continue
		}

		if !sleepContext(ctx, o.cfg.FetchInterval()) {
			return ctx.Err()
		}
	}
}

// Cycle performs one fetch, validate, store and clean pass.
func (o *Orchestrator) Cycle(ctx context.Context, cycleID string) error {
	started := time.Now()

	log.Debug("cycle state", "cycle", cycleID, "state", "fetching")
	candidates := o.fetcher.FetchDue(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.Debug("cycle state", "cycle", cycleID, "state", "validating", "candidates", len(candidates))
	confirmed := o.validator.BatchValidate(ctx, candidates)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.Debug("cycle state", "cycle", cycleID, "state", "storing", "alive", len(confirmed))
	stored := o.StoreConfirmed(ctx, confirmed)

	log.Debug("cycle state", "cycle", cycleID, "state", "cleaning")
	removed := o.cleaner.Clean(ctx)

	log.Info("cycle complete",
		"cycle", cycleID,
		"fetched", len(candidates),
		"alive", len(confirmed),
		"stored", stored,
		"removed", removed,
		"pooled", o.store.Count(ctx),
		"took", time.Since(started).Round(time.Millisecond),
	)
	return ctx.Err()
}

// StoreConfirmed upserts every confirmed-live record at its freshly
// computed composite score, tagging the country first when GeoIP is
// available.
func (o *Orchestrator) StoreConfirmed(ctx context.Context, confirmed []*domain.Record) int {
	now := time.Now()
	stored := 0
	for _, record := range confirmed {
		o.tagCountry(record)
		if o.store.UpdateScore(ctx, record, reputation.Score(record, now)) {
			stored++
		}
	}
	return stored
}

func (o *Orchestrator) tagCountry(record *domain.Record) {
	if o.geo == nil {
		return
	}
	country := o.geo.Country(record.IP)
	if country == "" {
		return
	}
	if record.Tags == nil {
		record.Tags = make(map[string]string)
	}
	record.Tags["country"] = country
}

// sleepContext waits for the duration unless the context is cancelled
// first, reporting whether the full sleep elapsed.
func sleepContext(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
