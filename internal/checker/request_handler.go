package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	xproxy "golang.org/x/net/proxy"
	"h12.io/socks"

	"proxypool/internal/domain"
)

const maxResponseBodyLength = 4096

// probe issues one request through the candidate proxy against testURL.
// Success means HTTP status < 400 with a non-empty body. The returned
// latency is the measured elapsed time, also on failure, so callers can
// fold it into the record's statistics either way.
func probe(ctx context.Context, record *domain.Record, testURL string, timeout time.Duration) (time.Duration, int, error) {
	transport, err := newTransport(record, timeout)
	if err != nil {
		return 0, 0, err
	}

	// A dedicated short-lived client per attempt: connection state must
	// not leak between untrusted proxies.
	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("building probe request: %w", err)
	}
	req.Header.Set("Connection", "close")
	req.Header.Set("User-Agent", probeUserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, 0, fmt.Errorf("probe via %s: %w", record.Key(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLength))
	latency = time.Since(start)
	if err != nil {
		return latency, resp.StatusCode, fmt.Errorf("reading probe response via %s: %w", record.Key(), err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return latency, resp.StatusCode, fmt.Errorf("probe via %s: status %d", record.Key(), resp.StatusCode)
	}
	if len(body) == 0 {
		return latency, resp.StatusCode, fmt.Errorf("probe via %s: empty response body", record.Key())
	}

	return latency, resp.StatusCode, nil
}

const probeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// newTransport wires the protocol-specific dialing path. HTTP and HTTPS
// proxies go through the standard proxied transport; SOCKS5 uses the
// x/net dialer and SOCKS4 the h12.io one, since x/net has no SOCKS4
// support.
func newTransport(record *domain.Record, timeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: timeout}

	transport := &http.Transport{
		DisableKeepAlives:     true,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		ResponseHeaderTimeout: timeout,
	}

	addr := record.Key()

	switch record.Protocol {
	case domain.ProtocolHTTP, domain.ProtocolHTTPS:
		proxyURL := &url.URL{Scheme: "http", Host: addr}
		transport.Proxy = http.ProxyURL(proxyURL)
		transport.DialContext = dialer.DialContext

	case domain.ProtocolSocks5:
		socksDialer, err := xproxy.SOCKS5("tcp", addr, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("building SOCKS5 dialer for %s: %w", addr, err)
		}
		if contextDialer, ok := socksDialer.(xproxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, address string) (net.Conn, error) {
				return socksDialer.Dial(network, address)
			}
		}

	case domain.ProtocolSocks4:
		dialFn := socks.Dial(fmt.Sprintf("socks4://%s?timeout=%s", addr, timeout))
		transport.DialContext = func(_ context.Context, network, address string) (net.Conn, error) {
			return dialFn(network, address)
		}

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidProtocol, record.Protocol)
	}

	return transport, nil
}
