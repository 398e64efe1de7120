package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTrade   = errors.New("invalid trade request")
	ErrDuplicateTrade = errors.New("duplicate trade id")
	ErrTerminalTrade  = errors.New("trade already terminal")
	ErrNotFound       = errors.New("not found")
	ErrLockHeld       = errors.New("lock already held")
)

// ErrorKind is the venue-independent classification of a failed call.
type ErrorKind string

const (
	KindMissingCredentials  ErrorKind = "missing_credentials"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindInvalidParameters   ErrorKind = "invalid_parameters"
	KindRateLimited         ErrorKind = "rate_limited"
	KindTradingSuspended    ErrorKind = "trading_suspended"
	KindTimeout             ErrorKind = "timeout"
	KindNetworkError        ErrorKind = "network_error"
	KindHTTPError           ErrorKind = "http_error"
	KindMalformedResponse   ErrorKind = "malformed_response"
	KindUnknown             ErrorKind = "unknown"

	// KindUnexpected is reported by the API boundary for faults of the
	// system itself. It is never attached to a trade leg.
	KindUnexpected ErrorKind = "unexpected_error"
)

// Stage records which response-handling layer produced a descriptor.
type Stage string

const (
	StageTransport        Stage = "transport"
	StageHTTP             Stage = "http"
	StageParse            Stage = "parse"
	StageAPI              Stage = "api"
	StageMalformedSuccess Stage = "malformed_success"
	StagePrecondition     Stage = "precondition"
	StageGate             Stage = "gate"
)

// ErrorDescriptor describes why a venue call did not succeed.
type ErrorDescriptor struct {
	Kind       ErrorKind `json:"kind"`
	Venue      string    `json:"venue"`
	Stage      Stage     `json:"stage,omitempty"`
	HTTPStatus int       `json:"httpStatus,omitempty"`
	VenueCode  string    `json:"venueCode,omitempty"`
	Message    string    `json:"message"`
	RawBody    string    `json:"rawBody,omitempty"`
}

func (d *ErrorDescriptor) Error() string {
	if d.VenueCode != "" {
		return fmt.Sprintf("%s %s (code %s): %s", d.Venue, d.Kind, d.VenueCode, d.Message)
	}
	if d.HTTPStatus != 0 {
		return fmt.Sprintf("%s %s (HTTP %d): %s", d.Venue, d.Kind, d.HTTPStatus, d.Message)
	}
	return fmt.Sprintf("%s %s: %s", d.Venue, d.Kind, d.Message)
}

// NewDescriptor builds a descriptor without transport details.
func NewDescriptor(kind ErrorKind, venue string, stage Stage, msg string) *ErrorDescriptor {
	return &ErrorDescriptor{Kind: kind, Venue: venue, Stage: stage, Message: msg}
}
