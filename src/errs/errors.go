package errs

import (
	"errors"
	"fmt"
)

// Kind tags an error with its place in the pipeline's taxonomy. Retry
// policy is looked up from the table below instead of being decided at
// each call site.
type Kind string

const (
	KindAuth                Kind = "auth_error"
	KindRateLimitedUpstream Kind = "rate_limited_upstream"
	KindTransport           Kind = "transport_error"
	KindMalformedRecord     Kind = "malformed_record"
	KindValidationRejected  Kind = "validation_rejected"
	KindReplayIgnored       Kind = "replay_ignored"
	KindConcurrentRun       Kind = "concurrent_run_rejected"
	KindFatalConfig         Kind = "fatal_config"
	KindInternal            Kind = "internal"
)

var retryable = map[Kind]bool{
	KindAuth:                true, // after re-authentication
	KindRateLimitedUpstream: true, // with backoff
	KindTransport:           true,
	KindMalformedRecord:     false,
	KindValidationRejected:  false,
	KindReplayIgnored:       false,
	KindConcurrentRun:       false, // caller may try again later, we never do
	KindFatalConfig:         false,
	KindInternal:            false,
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind tag.
func New(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a tagged error from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind tag of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a failed operation may be attempted again.
func Retryable(err error) bool {
	return retryable[KindOf(err)]
}
