// Package store keeps the scored pool: a ranked index (key -> score) plus
// a detail map (key -> serialized record), maintained as a logically
// atomic pair. Write paths belong to the orchestrator; consumers only
// read through the same handle, which is constructed once at bootstrap
// and injected everywhere it is needed.
package store

import (
	"context"

	"github.com/charmbracelet/log"

	"proxypool/internal/domain"
)

type Store interface {
	// Add inserts a record with score success_rate*100, rejecting
	// identities that already hold a pool slot. Returns false on
	// duplicates and on storage failure.
	Add(ctx context.Context, record *domain.Record) bool

	// AddIdentity inserts a bare identity at the configured initial
	// score, with the same add-if-absent rule.
	AddIdentity(ctx context.Context, id domain.Identity) bool

	// UpdateScore unconditionally upserts score and detail for a record.
	// This is the call used after every fresh validation outcome.
	UpdateScore(ctx context.Context, record *domain.Record, score float64) bool

	// UpdateIdentityScore upserts only the indexed score of a bare
	// identity, leaving any existing detail untouched.
	UpdateIdentityScore(ctx context.Context, id domain.Identity, score float64) bool

	// Remove deletes the pair for a pool key. Removing a non-member is
	// not an error; it returns false.
	Remove(ctx context.Context, key string) bool

	// RandomProxy draws uniformly from entries scoring at least minScore.
	// An empty subset yields (nil, false), never an error.
	RandomProxy(ctx context.Context, minScore float64) (*domain.Record, bool)

	GetAll(ctx context.Context) []*domain.Record
	GetByScoreRange(ctx context.Context, min, max float64) []*domain.Record
	Count(ctx context.Context) int64

	// BatchAdd applies the add-if-absent rule to every record in one
	// pipelined batch and reports how many were inserted.
	BatchAdd(ctx context.Context, records []*domain.Record) int

	// DecayScores multiplies every indexed score by factor, flooring at
	// the minimum score, and reports how many entries were touched.
	DecayScores(ctx context.Context, factor float64) int64

	// Clear empties both structures. Maintenance and testing use only.
	Clear(ctx context.Context) bool
}

// hydrate turns a pool member back into a record. A missing or corrupt
// detail entry degrades to a bare record instead of surfacing an error to
// readers.
func hydrate(key, detail string) (*domain.Record, bool) {
	if detail != "" {
		record, err := domain.DeserializeRecord(detail)
		if err == nil {
			return record, true
		}
		log.Debug("discarding corrupt pool detail", "key", key, "error", err)
	}

	record, err := domain.BareRecord(key)
	if err != nil {
		log.Debug("discarding unparseable pool member", "key", key, "error", err)
		return nil, false
	}
	return record, true
}

func defaultAddScore(record *domain.Record) float64 {
	return record.SuccessRate * 100
}
