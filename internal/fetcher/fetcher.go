package fetcher

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"proxypool/internal/domain"
)

var candidateLine = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3}):(\d{1,5})$`)

// ParseCandidate turns a raw "ip:port" string into a fresh record with
// zeroed statistics. The record constructor enforces the IP and port
// invariants, so everything that parses here is storable.
func ParseCandidate(raw, source string) (*domain.Record, error) {
	match := candidateLine.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCandidate, raw)
	}

	port, err := strconv.Atoi(match[2])
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPort, raw)
	}

	return domain.NewRecord(match[1], uint16(port), domain.ProtocolHTTP, source)
}

// Fetcher aggregates candidates from all registered sources. Sources are
// composed through a registry map; the orchestrator only ever sees the
// resulting batch of records.
type Fetcher struct {
	mu      sync.Mutex
	sources map[string]Source
	seen    map[string]struct{}
}

func New() *Fetcher {
	return &Fetcher{
		sources: make(map[string]Source),
		seen:    make(map[string]struct{}),
	}
}

func (f *Fetcher) Register(source Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[source.Name()] = source
}

// FetchDue polls every enabled, due source and returns the parsed,
// deduplicated batch. A source's failure is logged and skipped; malformed
// candidates are discarded at debug level. The seen-cache spans cycles so
// a candidate re-announced by its source does not re-enter the batch
// while its record is still pooled; the cleaner forgets evicted keys.
func (f *Fetcher) FetchDue(ctx context.Context) []*domain.Record {
	f.mu.Lock()
	sources := make([]Source, 0, len(f.sources))
	for _, source := range f.sources {
		if source.Enabled() && source.Due() {
			sources = append(sources, source)
		}
	}
	f.mu.Unlock()

	var records []*domain.Record
	for _, source := range sources {
		candidates, err := source.Fetch(ctx)
		if err != nil {
			log.Error("source fetch failed", "source", source.Name(), "error", err)
			continue
		}

		kept := 0
		for _, candidate := range candidates {
			record, err := ParseCandidate(candidate, source.Name())
			if err != nil {
				log.Debug("discarding candidate", "source", source.Name(), "candidate", candidate, "error", err)
				continue
			}

			if !f.markSeen(record.Key()) {
				continue
			}
			records = append(records, record)
			kept++
		}

		log.Info("source fetched", "source", source.Name(), "raw", len(candidates), "new", kept)
	}
	return records
}

// Forget drops keys from the dedupe cache so a later re-fetch of the same
// identity creates a fresh record with zeroed statistics.
func (f *Fetcher) Forget(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.seen, key)
	}
}

func (f *Fetcher) markSeen(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}
	return true
}
