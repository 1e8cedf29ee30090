package ingest

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the ingest API can produce. Callers branch
// on Kind, never on raw status codes.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindNotRegistered
	KindRateLimited
	KindServerError
	KindNetworkError
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotRegistered:
		return "not_registered"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindNetworkError:
		return "network_error"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every Client operation.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// Sentinels for errors.Is. Matching compares Kind only.
var (
	ErrUnauthorized  = &Error{Kind: KindUnauthorized}
	ErrNotRegistered = &Error{Kind: KindNotRegistered}
	ErrRateLimited   = &Error{Kind: KindRateLimited}
	ErrServerError   = &Error{Kind: KindServerError}
	ErrNetworkError  = &Error{Kind: KindNetworkError}
	ErrOther         = &Error{Kind: KindOther}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnauthorized:
		return "authentication failed: invalid API key"
	case KindNotRegistered:
		return "server not registered, need to re-register"
	case KindRateLimited:
		return "rate limited, backing off"
	case KindServerError:
		return "server error: " + e.Detail
	case KindNetworkError:
		return "network error: " + e.Detail
	default:
		return "unexpected error: " + e.Detail
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or 0 if err is not an ingest error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// classifyStatus maps an HTTP status and body to the error taxonomy. A nil
// result means the status is a success (200, 201, 204). 404 becomes
// NotRegistered only when notFoundMeansUnregistered is set; the register
// operation has no identity to lose and reports it as Other.
func classifyStatus(status int, body, op string, notFoundMeansUnregistered bool) error {
	switch {
	case status == http.StatusOK || status == http.StatusCreated || status == http.StatusNoContent:
		return nil
	case status == http.StatusUnauthorized:
		return newError(KindUnauthorized, "", nil)
	case status == http.StatusNotFound && notFoundMeansUnregistered:
		return newError(KindNotRegistered, "", nil)
	case status == http.StatusTooManyRequests:
		return newError(KindRateLimited, "", nil)
	case status >= 500 && status <= 599:
		return newError(KindServerError, body, nil)
	default:
		return newError(KindOther, fmt.Sprintf("unexpected status %d during %s: %s", status, op, body), nil)
	}
}
