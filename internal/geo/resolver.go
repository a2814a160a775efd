// Package geo tags records with their country of origin when a GeoIP
// database is available. Purely informational; the scorer never reads it.
package geo

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

type Resolver struct {
	mu sync.Mutex
	db *geoip2.Reader
}

func Open(path string) (*Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open database %q: %w", path, err)
	}
	return &Resolver{db: db}, nil
}

func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}

// Country returns the country name for an IP, or "" when unknown.
func (r *Resolver) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	r.mu.Lock()
	record, err := r.db.Country(parsed)
	r.mu.Unlock()
	if err != nil || record == nil {
		return ""
	}
	return record.Country.Names["en"]
}
