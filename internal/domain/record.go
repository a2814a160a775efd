package domain

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSocks4 Protocol = "socks4"
	ProtocolSocks5 Protocol = "socks5"
)

func ParseProtocol(raw string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(raw))) {
	case ProtocolHTTP:
		return ProtocolHTTP, nil
	case ProtocolHTTPS:
		return ProtocolHTTPS, nil
	case ProtocolSocks4:
		return ProtocolSocks4, nil
	case ProtocolSocks5:
		return ProtocolSocks5, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidProtocol, raw)
}

type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusActive   Status = "active"
	StatusUnstable Status = "unstable"
	StatusFailed   Status = "failed"
	StatusBanned   Status = "banned"
)

type Anonymity string

const (
	AnonymityTransparent Anonymity = "transparent"
	AnonymityAnonymous   Anonymity = "anonymous"
	AnonymityHigh        Anonymity = "high"
	AnonymityElite       Anonymity = "elite"
	AnonymityUnknown     Anonymity = "unknown"
)

// Identity is the in-process identity of a proxy endpoint. The store keys
// entries by Key() only; Protocol rides along so the prober knows how to
// dial but two records differing only by protocol share a pool slot.
type Identity struct {
	IP       string   `json:"ip"`
	Port     uint16   `json:"port"`
	Protocol Protocol `json:"protocol"`
}

// Key returns the "ip:port" member used in the ranked index and detail map.
func (id Identity) Key() string {
	return fmt.Sprintf("%s:%d", id.IP, id.Port)
}

// URL returns the dialable form, e.g. "socks5://1.2.3.4:1080".
func (id Identity) URL() string {
	return fmt.Sprintf("%s://%s:%d", id.Protocol, id.IP, id.Port)
}

// MaxResponseTimes caps the rolling latency window kept per record.
const MaxResponseTimes = 100

// failedStatusStreak is the consecutive-failure count that flips a record
// to StatusFailed.
const failedStatusStreak = 5

// Record is the normalized, stateful entity representing one proxy
// endpoint and its rolling performance history. Latencies are kept in
// seconds to survive JSON round-trips without unit ambiguity.
type Record struct {
	IP                     string     `json:"ip"`
	Port                   uint16     `json:"port"`
	Protocol               Protocol   `json:"protocol"`
	SuccessRate            float64    `json:"success_rate"`
	AvgResponseTime        float64    `json:"avg_response_time"`
	ResponseTimes          []float64  `json:"response_times,omitempty"`
	ConsecutiveFailedTimes int        `json:"consecutive_failed_times"`
	TotalRequests          int        `json:"total_requests"`
	LastCheckTime          time.Time  `json:"last_check_time"`
	LastSuccessTime        *time.Time `json:"last_success_time,omitempty"`
	CreatedTime            time.Time  `json:"created_time"`
	LastStatusCode         int        `json:"last_status_code,omitempty"`
	Status                 Status     `json:"status"`
	Anonymity              Anonymity  `json:"anonymity"`
	Source                 string     `json:"source,omitempty"`
	Tags                   map[string]string `json:"tags,omitempty"`
}

// NewRecord builds a fresh record with zeroed statistics. It is the only
// constructor used for candidates, so every record in the system has been
// through Validate at least once.
func NewRecord(ip string, port uint16, protocol Protocol, source string) (*Record, error) {
	now := time.Now()
	record := &Record{
		IP:            ip,
		Port:          port,
		Protocol:      protocol,
		Status:        StatusUnknown,
		Anonymity:     AnonymityUnknown,
		Source:        source,
		CreatedTime:   now,
		LastCheckTime: now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// Validate enforces the record invariants: dotted-quad IPv4, port in
// 1-65535, known protocol, statistics inside their valid ranges.
func (r *Record) Validate() error {
	parsed := net.ParseIP(r.IP)
	if parsed == nil || parsed.To4() == nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, r.IP)
	}
	if r.Port == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, r.Port)
	}
	if _, err := ParseProtocol(string(r.Protocol)); err != nil {
		return err
	}
	if r.SuccessRate < 0 || r.SuccessRate > 1 {
		return fmt.Errorf("%w: success rate %v", ErrInvalidStats, r.SuccessRate)
	}
	if r.AvgResponseTime < 0 {
		return fmt.Errorf("%w: average response time %v", ErrInvalidStats, r.AvgResponseTime)
	}
	return nil
}

func (r *Record) Identity() Identity {
	return Identity{IP: r.IP, Port: r.Port, Protocol: r.Protocol}
}

func (r *Record) Key() string {
	return r.Identity().Key()
}

// UpdateStats folds one probe outcome into the running statistics.
// Failed attempts count their measured elapsed time (the full timeout when
// the attempt timed out) toward the latency mean, same as successes.
// A statusCode of 0 means no HTTP status was observed.
func (r *Record) UpdateStats(isSuccess bool, responseTime time.Duration, statusCode int) {
	r.TotalRequests++
	n := float64(r.TotalRequests)

	outcome := 0.0
	if isSuccess {
		outcome = 1.0
	}
	r.SuccessRate = (r.SuccessRate*(n-1) + outcome) / n

	seconds := responseTime.Seconds()
	r.AvgResponseTime = (r.AvgResponseTime*(n-1) + seconds) / n

	r.ResponseTimes = append(r.ResponseTimes, seconds)
	if len(r.ResponseTimes) > MaxResponseTimes {
		r.ResponseTimes = r.ResponseTimes[len(r.ResponseTimes)-MaxResponseTimes:]
	}

	now := time.Now()
	r.LastCheckTime = now
	if isSuccess {
		r.ConsecutiveFailedTimes = 0
		r.LastSuccessTime = &now
	} else {
		r.ConsecutiveFailedTimes++
	}

	if statusCode > 0 {
		r.LastStatusCode = statusCode
	}

	r.deriveStatus()
}

// deriveStatus re-derives the lifecycle status from the statistics.
// Banned is sticky: it is only ever set by operator action.
func (r *Record) deriveStatus() {
	if r.Status == StatusBanned {
		return
	}
	switch {
	case r.ConsecutiveFailedTimes >= failedStatusStreak:
		r.Status = StatusFailed
	case r.SuccessRate >= 0.8:
		r.Status = StatusActive
	default:
		r.Status = StatusUnstable
	}
}

// Serialize encodes the record for the detail map. The composite score is
// derived state and deliberately not part of the payload.
func (r *Record) Serialize() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("serialize record %s: %w", r.Key(), err)
	}
	return string(data), nil
}

// DeserializeRecord is the inverse of Serialize.
func DeserializeRecord(data string) (*Record, error) {
	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("deserialize record: %w", err)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return &record, nil
}

// BareRecord hydrates a pool member that has no detail entry left, so
// read paths can degrade gracefully instead of failing. Statistics are
// zeroed and the protocol defaults to http.
func BareRecord(key string) (*Record, error) {
	host, port, err := net.SplitHostPort(key)
	if err != nil {
		return nil, fmt.Errorf("%w: pool member %q", ErrInvalidCandidate, key)
	}
	var portNum int
	if _, err := fmt.Sscanf(port, "%d", &portNum); err != nil || portNum < 1 || portNum > 65535 {
		return nil, fmt.Errorf("%w: pool member %q", ErrInvalidPort, key)
	}
	return NewRecord(host, uint16(portNum), ProtocolHTTP, "")
}

func (r *Record) String() string {
	return fmt.Sprintf("%s (%s, success %.0f%%, avg %.2fs, requests %d)",
		r.Key(), r.Protocol, r.SuccessRate*100, r.AvgResponseTime, r.TotalRequests)
}
