// Package errors provides structured error types for gh-backup.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for gh-backup.
const (
	// Pre-run errors
	CodeAuthRequired    Code = "AUTH_REQUIRED"
	CodeAccountNotFound Code = "ACCOUNT_NOT_FOUND"
	CodeListFailed      Code = "LIST_REPOS_FAILED"
	CodeConfigInvalid   Code = "CONFIG_INVALID"
	CodeOutputDir       Code = "OUTPUT_DIR_UNWRITABLE"

	// Per-repository errors
	CodeCloneFailed  Code = "CLONE_FAILED"
	CodeRepoNotFound Code = "REPO_NOT_FOUND"
	CodeIssueExport  Code = "ISSUE_EXPORT_FAILED"
	CodeNetwork      Code = "NETWORK_ERROR"
	CodeRateLimited  Code = "RATE_LIMITED"

	// Post-run errors
	CodeArchiveFailed Code = "ARCHIVE_FAILED"
)

// Kind classifies how an error affects retry and run outcome.
// Classification is always explicit at the site that constructs the error,
// never inferred from error text.
type Kind int

const (
	// KindTransient errors are expected to resolve on retry (timeouts,
	// rate limits).
	KindTransient Kind = iota
	// KindDefinitive errors will not resolve on retry (auth, not-found,
	// disk full). They abort the affected job immediately.
	KindDefinitive
	// KindFatal errors abort the entire run before or after job dispatch.
	KindFatal
	// KindCancelled marks cooperative cancellation. It is a distinct
	// terminal state, not a failure.
	KindCancelled
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindDefinitive:
		return "definitive"
	case KindFatal:
		return "fatal"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the structured error type for gh-backup.
type Error struct {
	Code  Code
	Kind  Kind
	What  string
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Transient constructs a transient error.
func Transient(code Code, what string, cause error) *Error {
	return &Error{Code: code, Kind: KindTransient, What: what, Cause: cause}
}

// Definitive constructs a definitive error.
func Definitive(code Code, what string, cause error) *Error {
	return &Error{Code: code, Kind: KindDefinitive, What: what, Cause: cause}
}

// Fatal constructs a fatal pre-run or post-run error.
func Fatal(code Code, what string, cause error) *Error {
	return &Error{Code: code, Kind: KindFatal, What: what, Cause: cause}
}

// Cancelled constructs a cancellation marker error.
func Cancelled(what string) *Error {
	return &Error{Code: "CANCELLED", Kind: KindCancelled, What: what}
}

// KindOf returns the kind of err. Errors that are not *Error default to
// transient, matching the retry policy's "retry unless told otherwise"
// contract for plain command failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsDefinitive reports whether err should abort without retry.
func IsDefinitive(err error) bool {
	k := KindOf(err)
	return k == KindDefinitive || k == KindFatal
}

// IsCancelled reports whether err marks cooperative cancellation,
// including plain context errors.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindCancelled {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Redact replaces every occurrence of each secret in s with "***".
// Empty secrets are ignored. Every error surface that might embed
// credential material (clone URLs, subprocess stderr) must pass
// through Redact before being logged or stored in an outcome.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

// RedactError returns err's message with secrets redacted, or "" for nil.
func RedactError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error(), secrets...)
}

// Wrapf wraps err with a formatted message, preserving its kind.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Code: e.Code, Kind: e.Kind, What: fmt.Sprintf(format, args...), Cause: err}
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
