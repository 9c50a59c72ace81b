package scraper

import (
	"errors"
	"fmt"
)

// Error taxonomy. Network, render and blocked failures are retryable through the
// fetch policy; parse failures skip the page; fatal setup failures abort the run.
var (
	ErrNetwork    = errors.New("network error")
	ErrRender     = errors.New("render error")
	ErrBlocked    = errors.New("blocked")
	ErrParse      = errors.New("parse error")
	ErrFatalSetup = errors.New("fatal setup error")
)

// FetchError carries the failure class and the URL involved.
type FetchError struct {
	Kind error
	URL  string
	Err  error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap exposes both the class sentinel and the cause to errors.Is/As.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewNetworkError wraps err as a retryable network failure.
func NewNetworkError(rawURL string, err error) error {
	return &FetchError{Kind: ErrNetwork, URL: rawURL, Err: err}
}

// NewRenderError wraps err as a retryable render failure.
func NewRenderError(rawURL string, err error) error {
	return &FetchError{Kind: ErrRender, URL: rawURL, Err: err}
}

// NewBlockedError reports an anti-bot response identified by signature.
func NewBlockedError(rawURL, signature string) error {
	return &FetchError{Kind: ErrBlocked, URL: rawURL, Err: fmt.Errorf("signature %q", signature)}
}

// NewParseError reports content that is not parseable markup.
func NewParseError(rawURL string, err error) error {
	return &FetchError{Kind: ErrParse, URL: rawURL, Err: err}
}

// NewFatalSetupError reports a browser or driver that cannot start.
func NewFatalSetupError(err error) error {
	return &FetchError{Kind: ErrFatalSetup, Err: err}
}

// IsRetryable reports whether err belongs to a class the fetch policy may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRender) || errors.Is(err, ErrBlocked)
}

// ErrorClass returns a short label for logging and metrics.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFatalSetup):
		return "fatal_setup"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrRender):
		return "render"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "other"
	}
}
