package provider

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors. Provider failures unwrap to exactly one of them.
var (
	ErrRateLimited        = eris.New("provider: rate limited")
	ErrCredentialMissing  = eris.New("provider: credential missing")
	ErrCredentialInvalid  = eris.New("provider: credential invalid")
	ErrProviderUnexpected = eris.New("provider: unexpected error")
)

// Kind groups errors by how a multi-step operation should react.
type Kind int

const (
	KindNone Kind = iota
	// KindRateLimited halts and asks the user to come back later.
	KindRateLimited
	// KindCredential halts and points the user at configuration.
	KindCredential
	// KindUnexpected is reported and the operation moves on.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRateLimited:
		return "rate_limited"
	case KindCredential:
		return "credential"
	default:
		return "unexpected"
	}
}

// Error is a classified provider failure.
type Error struct {
	Provider string
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	return e.Provider + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Message hints are phrases only. Bare status codes also turn up in ids and
// phone numbers, so statuses are mapped by classifyStatus instead.
var (
	rateLimitHints  = []string{"quota", "rate limit", "rate_limit", "resource_exhausted", "too many requests"}
	credentialHints = []string{"api key", "api_key", "unauthorized", "authentication", "permission denied", "forbidden"}
)

// Classify maps any error to a Kind, using the sentinels first and falling
// back to signals in the message text.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrCredentialMissing), errors.Is(err, ErrCredentialInvalid):
		return KindCredential
	case errors.Is(err, ErrProviderUnexpected):
		return KindUnexpected
	}

	msg := strings.ToLower(err.Error())
	for _, h := range rateLimitHints {
		if strings.Contains(msg, h) {
			return KindRateLimited
		}
	}
	for _, h := range credentialHints {
		if strings.Contains(msg, h) {
			return KindCredential
		}
	}
	return KindUnexpected
}

// classifyStatus wraps a provider call failure with the sentinel matching
// its HTTP status, or its message when the status is unknown.
func classifyStatus(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	var kind error
	switch {
	case status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = ErrCredentialInvalid
	default:
		switch Classify(err) {
		case KindRateLimited:
			kind = ErrRateLimited
		case KindCredential:
			kind = ErrCredentialInvalid
		default:
			kind = ErrProviderUnexpected
		}
	}
	return &Error{Provider: provider, Kind: kind, Err: err}
}
