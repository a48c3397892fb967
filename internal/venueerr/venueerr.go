// Package venueerr defines the error taxonomy shared by the venue, premium,
// risk, and strategy packages. Errors are classified by Kind rather than by
// concrete Go type so that callers can branch on policy (retry, abort,
// escalate) without importing every producer package.
package venueerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry/abort/escalate policy.
type Kind string

const (
	// ConfigInvalid covers missing credentials or contradictory limits.
	// Fatal at startup.
	ConfigInvalid Kind = "config_invalid"

	// VenueAuth covers credential rejection or IP-allowlist failure. Fatal
	// at startup; per-call during runtime disables the affected symbol.
	VenueAuth Kind = "venue_auth"

	// VenueTransient covers 5xx, network timeout, or rate-limit responses.
	// Retried with backoff up to the operation's budget.
	VenueTransient Kind = "venue_transient"

	// VenuePermanent covers a bad symbol, a below-minimum order, or
	// insufficient balance. Surfaced to the caller; aborts the current step.
	VenuePermanent Kind = "venue_permanent"

	// FiatUnavailable means every rate provider failed and no fresh cache
	// exists. Blocks any KRW<->USDT operation.
	FiatUnavailable Kind = "fiat_unavailable"

	// TransferTimeout means a deposit was not observed before the transfer
	// wait ceiling. The owning trade enters recovery.
	TransferTimeout Kind = "transfer_timeout"

	// SlippageExceeded means the execution price was worse than the
	// configured limit. The current step fails and the trade enters
	// recovery.
	SlippageExceeded Kind = "slippage_exceeded"

	// RiskRejected means the admission predicate failed. Not an operator
	// error; the opportunity is simply dropped.
	RiskRejected Kind = "risk_rejected"

	// EmergencyStop means the risk manager is tripped. Admission is
	// suspended until an operator resets it.
	EmergencyStop Kind = "emergency_stop"

	// PartialFill means executedQty < requested * 0.995 on a market order.
	// It is a distinct kind, not VenuePermanent, and is not retried: a
	// partial fill needs operator review rather than a blind retry.
	PartialFill Kind = "partial_fill"
)

// Error is the concrete error type carried through the system. It wraps an
// underlying cause (if any) and tags it with a Kind so callers can use
// errors.As to recover the classification after wrapping with fmt.Errorf.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "exk.MarketBuy"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error with no underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error carrying an underlying cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error. Returns ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether the error's kind should be retried by the
// exchange-layer backoff machinery (venueerr.VenueTransient only; every
// other kind surfaces immediately).
func IsRetryable(err error) bool {
	return Is(err, VenueTransient)
}
