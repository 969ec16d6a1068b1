// Package lnferr defines the error kinds propagated between lnfeed's
// components, per the error handling design in SPEC_FULL.md section 1.3.
package lnferr

import "fmt"

// Kind enumerates the categories of failure a cycle step can produce.
type Kind string

const (
	// KindTransport covers API-unreachable, TLS, and HMAC signing failures.
	KindTransport Kind = "transport"
	// KindRemote covers the remote node API returning an application-level error.
	KindRemote Kind = "remote"
	// KindStore covers the local relational store failing to read or write.
	KindStore Kind = "store"
	// KindConfig covers configuration file and flag parsing failures.
	KindConfig Kind = "config"
	// KindOracle covers the on-chain fee oracle failing or returning garbage.
	KindOracle Kind = "oracle"
	// KindInvariant covers an internal logic violation that should never happen.
	KindInvariant Kind = "invariant"
)

// Error wraps an underlying cause with a Kind and a remedy hint, so a single
// log line can carry kind, context, and remedy per SPEC_FULL.md / spec.md §7.
type Error struct {
	Kind    Kind
	Context string
	Remedy  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, context, remedy string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Remedy: remedy, Cause: cause}
}

func Transport(context string, cause error) *Error {
	return New(KindTransport, context, "check node API connectivity and TLS/HMAC credentials", cause)
}

func Remote(context string, cause error) *Error {
	return New(KindRemote, context, "inspect the remote node's error response", cause)
}

func Store(context string, cause error) *Error {
	return New(KindStore, context, "check store health; the cycle will retry next interval", cause)
}

func Config(context string, cause error) *Error {
	return New(KindConfig, context, "fix the configuration file and restart", cause)
}

func Oracle(context string, cause error) *Error {
	return New(KindOracle, context, "the fee oracle is unreachable; regime reports Mid once no fee samples remain", cause)
}

func Invariant(context string, cause error) *Error {
	return New(KindInvariant, context, "internal logic violation; the offending module is skipped this cycle", cause)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if asErr, ok := err.(*Error); ok {
			e = asErr
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
