// Package fault defines the typed error taxonomy shared by every stage of the
// media pipeline. Stage-local failures are translated into a Kind at the stage
// boundary so callers branch on kinds, never on error text.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failure.
type Kind string

const (
	UpstreamUnavailable Kind = "upstream_unavailable"
	TooLong             Kind = "too_long"
	NoCompatibleFormat  Kind = "no_compatible_format"
	TooLarge            Kind = "too_large"
	QuotaExceeded       Kind = "quota_exceeded"
	StoreUnavailable    Kind = "store_unavailable"
	InvalidPayload      Kind = "invalid_payload"
	Timeout             Kind = "timeout"
	PartialSend         Kind = "partial_send"
	Rejected            Kind = "rejected"
)

// Retryable reports whether a caller may retry the failed stage once.
func (k Kind) Retryable() bool {
	return k == Timeout || k == UpstreamUnavailable
}

// Fatal reports whether no retry can change the result.
func (k Kind) Fatal() bool {
	return k == TooLong || k == NoCompatibleFormat
}

// Error carries a Kind plus the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	// ChunksSent is set for PartialSend: chunks delivered before the failure.
	ChunksSent int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Kind == PartialSend {
		msg = fmt.Sprintf("%s (%d chunks sent)", msg, e.ChunksSent)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Partial reports a chunked send that stopped after sent chunks.
func Partial(op string, sent int, err error) *Error {
	return &Error{Kind: PartialSend, Op: op, ChunksSent: sent, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// err is untyped.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Ensure returns err unchanged when it already carries a kind, otherwise wraps
// it with fallback.
func Ensure(err error, fallback Kind, op string) error {
	if err == nil || KindOf(err) != "" {
		return err
	}
	return New(fallback, op, err)
}

// IsTimeout reports deadline expiry or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
