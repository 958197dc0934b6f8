package app

import (
	"errors"
	"fmt"
	"net/http"

	"ledgerboard/api/internal/rbac"
	"ledgerboard/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

// denied carries the firing rule so clients can tell denials apart.
func denied(decision rbac.Decision) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", decision.Reason, map[string]any{"rule": decision.Rule})
}

var errNotAuthenticated = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)

// failure wraps a backend error behind a generic client message. The cause
// is kept for logging.
type failure struct {
	message string
	cause   error
}

func (f *failure) Error() string { return f.message + ": " + f.cause.Error() }
func (f *failure) Unwrap() error { return f.cause }

func failed(message string, cause error) error {
	if cause == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(cause, &domainErr) {
		return cause
	}
	if errors.Is(cause, store.ErrNotFound) {
		return cause
	}
	return &failure{message: message, cause: cause}
}
