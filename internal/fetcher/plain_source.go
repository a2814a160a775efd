package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/charmbracelet/log"
)

// candidatePattern matches "ip:port" occurrences anywhere in a response
// body, so plain lists, CSVs and API payloads all work unmodified.
var candidatePattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}:\d{1,5}\b`)

const maxSourceBodyBytes = 4 << 20

// PlainTextSource downloads proxy list URLs and scans them for
// candidates. It covers the common aggregator endpoints that serve one
// "ip:port" per line without any site-specific parsing.
type PlainTextSource struct {
	cfg    *SourceConfig
	client *http.Client
}

func NewPlainTextSource(cfg *SourceConfig) *PlainTextSource {
	return &PlainTextSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *PlainTextSource) Name() string  { return s.cfg.Name }
func (s *PlainTextSource) Enabled() bool { return s.cfg.Enabled }
func (s *PlainTextSource) Due() bool     { return s.cfg.Due() }

func (s *PlainTextSource) Fetch(ctx context.Context) ([]string, error) {
	defer s.cfg.MarkFetched()

	var candidates []string
	var lastErr error

	for _, target := range s.cfg.URLs {
		found, err := s.fetchOne(ctx, target)
		if err != nil {
			// One bad URL must not sink the source's other URLs.
			log.Warn("source URL failed", "source", s.cfg.Name, "url", target, "error", err)
			lastErr = err
			continue
		}
		candidates = append(candidates, found...)
	}

	if len(candidates) == 0 && lastErr != nil {
		return nil, fmt.Errorf("source %s: %w", s.cfg.Name, lastErr)
	}
	return candidates, nil
}

func (s *PlainTextSource) fetchOne(ctx context.Context, target string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBodyBytes))
	if err != nil {
		return nil, err
	}

	return candidatePattern.FindAllString(string(body), -1), nil
}
