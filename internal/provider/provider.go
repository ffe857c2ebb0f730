package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a provider failure by how it can be recovered.
type Kind string

const (
	// KindTransient failures are safe to retry with the same input.
	KindTransient Kind = "transient"
	// KindPermanent failures need changed input or human intervention.
	KindPermanent Kind = "permanent"
)

// Failure is a classified error from an external provider call.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s provider failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func Transient(err error) *Failure {
	return &Failure{Kind: KindTransient, Err: err}
}

func Permanent(err error) *Failure {
	return &Failure{Kind: KindPermanent, Err: err}
}

func Transientf(format string, args ...any) *Failure {
	return Transient(fmt.Errorf(format, args...))
}

func Permanentf(format string, args ...any) *Failure {
	return Permanent(fmt.Errorf(format, args...))
}

// KindOf reports the failure kind of err. Everything unclassified —
// timeouts, connection errors, plain wrapped errors — counts as transient:
// an indeterminate outcome must stay retry-eligible.
func KindOf(err error) Kind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return KindTransient
}

// IsPermanent reports whether err is classified as a permanent failure.
func IsPermanent(err error) bool {
	return KindOf(err) == KindPermanent
}

// FromStatusCode classifies an HTTP error response. Rate limits, request
// timeouts and server errors are transient; every other client error is
// permanent (bad credentials, rejected content, malformed request).
func FromStatusCode(statusCode int, body string) *Failure {
	msg := strings.TrimSpace(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	err := fmt.Errorf("unexpected status %d: %s", statusCode, msg)

	switch {
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		return Transient(err)
	default:
		return Permanent(err)
	}
}
