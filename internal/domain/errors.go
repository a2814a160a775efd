package domain

import "errors"

// Recoverable parse/validation failures. Candidates that trip these are
// discarded without failing the batch they arrived in.
var (
	ErrInvalidIP        = errors.New("invalid IP address")
	ErrInvalidPort      = errors.New("invalid port")
	ErrInvalidProtocol  = errors.New("unsupported protocol")
	ErrInvalidStats     = errors.New("statistics out of range")
	ErrInvalidCandidate = errors.New("malformed candidate")
)
