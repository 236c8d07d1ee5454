package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nexconsult/goc-sync/internal/browser"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("portal credentials not configured")
	ErrLoginFormNotFound  = errors.New("login form not found")
	ErrSessionExpired     = errors.New("session expired")

	ErrFrameNotFound    = errors.New("content frame not found")
	ErrContentNotLoaded = errors.New("content frame did not load")
	ErrMenuNotFound     = errors.New("menu link not found")
	ErrFormNotOpened    = errors.New("new entry form did not open")

	ErrElementNotFound = errors.New("element not found")
	ErrFieldNotFilled  = errors.New("field value not accepted")
	ErrSubmitNotFound  = errors.New("submit control not found")
	ErrSubmitRejected  = errors.New("portal rejected the submission")

	ErrParsingFailed       = errors.New("failed to parse portal content")
	ErrPaginationExhausted = errors.New("no way to reach the next page")
)

// ScraperError provides detailed error context
type ScraperError struct {
	Operation string
	Step      string
	URL       string
	Cause     error
	Details   string
}

func (e *ScraperError) Error() string {
	msg := fmt.Sprintf("[goc] %s failed", e.Operation)
	if e.Step != "" {
		msg += " at " + e.Step
	}
	msg += fmt.Sprintf(": %v", e.Cause)
	if e.Details != "" {
		msg += " - " + e.Details
	}
	return msg
}

func (e *ScraperError) Unwrap() error {
	return e.Cause
}

func wrap(op, step, url string, cause error, details string) error {
	return &ScraperError{Operation: op, Step: step, URL: url, Cause: cause, Details: details}
}

// FieldError names one rejected form field
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError is returned before any browser interaction
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err carries field-level validation failures
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsSessionLevel reports failures that doom every remaining record of a
// batch: a dead browser, a cancelled run or rejected credentials
func IsSessionLevel(err error) bool {
	return errors.Is(err, browser.ErrSessionDead) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrMissingCredentials)
}

// isLoginFailure reports errors raised while authenticating
func isLoginFailure(err error) bool {
	if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrLoginFormNotFound) {
		return true
	}
	var se *ScraperError
	return errors.As(err, &se) && se.Operation == "login"
}
