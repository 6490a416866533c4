package apperr

import (
	"errors"
	"fmt"
)

// Kind is the discriminant of an application error.
type Kind string

const (
	KindUnauthenticated     Kind = "unauthenticated"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindValidation          Kind = "validation"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindInvalidAmount       Kind = "invalid_amount"
	KindProvider            Kind = "provider_error"
	KindExtraction          Kind = "extraction_error"
	KindAuth                Kind = "auth_error"
	KindInternal            Kind = "internal_error"
)

// Error is the single error type crossing component boundaries.
type Error struct {
	Kind      Kind
	Message   string
	Provider  string // set for KindProvider
	UserID    string // set for ledger errors
	ElapsedMs int64  // time spent before a provider failure
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrInsufficientCredits = &Error{Kind: KindInsufficientCredits}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrProvider            = &Error{Kind: KindProvider}
	ErrExtraction          = &Error{Kind: KindExtraction}
	ErrAuth                = &Error{Kind: KindAuth}
	ErrInternal            = &Error{Kind: KindInternal}
)

func Unauthenticated(msg string) *Error { return &Error{Kind: KindUnauthenticated, Message: msg} }

func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Conflict reports a write that lost a race against another request.
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func InsufficientCredits(userID string) *Error {
	return &Error{
		Kind:    KindInsufficientCredits,
		Message: "Insufficient credits. Please recharge your account.",
		UserID:  userID,
	}
}

func InvalidAmount(userID string, amount int) *Error {
	return &Error{
		Kind:    KindInvalidAmount,
		Message: fmt.Sprintf("credit amount must be positive, got %d", amount),
		UserID:  userID,
	}
}

// Provider reports a failed upstream AI call.
func Provider(provider, msg string, elapsedMs int64, cause error) *Error {
	return &Error{Kind: KindProvider, Message: msg, Provider: provider, ElapsedMs: elapsedMs, Err: cause}
}

func Extraction(msg string, cause error) *Error {
	return &Error{Kind: KindExtraction, Message: msg, Err: cause}
}

// Auth is an identity-store failure while resolving a credential.
func Auth(cause error) *Error {
	return &Error{Kind: KindAuth, Message: "Authentication error", Err: cause}
}

func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: cause}
}

// Ledger wraps a storage failure that happened while touching a user's credits.
func Ledger(userID, msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, UserID: userID, Err: cause}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsDomain reports whether err carries one of the locally detected kinds
// (anything except Internal/Auth).
func IsDomain(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	return e.Kind != KindInternal && e.Kind != KindAuth
}
