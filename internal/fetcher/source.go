// Package fetcher turns external candidate sources into deduplicated
// proxy records. Site-specific HTML scraping lives outside this module;
// sources here implement a narrow contract: fallibly produce raw
// "ip:port" strings when due.
package fetcher

import (
	"context"
	"sync"
	"time"
)

// Source is the capability contract for one candidate source.
type Source interface {
	Name() string
	Enabled() bool

	// Due reports whether the source's cooldown has elapsed.
	Due() bool

	// Fetch produces raw "ip:port" candidate strings. Malformed entries
	// are fine; the fetcher discards them downstream.
	Fetch(ctx context.Context) ([]string, error)
}

// SourceConfig carries the per-source polling knobs shared by source
// implementations.
type SourceConfig struct {
	Name     string
	URLs     []string
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration

	mu        sync.Mutex
	lastFetch time.Time
}

func (c *SourceConfig) Due() bool {
	if !c.Enabled {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastFetch.IsZero() {
		return true
	}
	return time.Since(c.lastFetch) >= c.Interval
}

func (c *SourceConfig) MarkFetched() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFetch = time.Now()
}
