package app

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindInvalidOperation Kind = "INVALID_OPERATION"
	KindValidation       Kind = "VALIDATION_ERROR"
	KindPersistence      Kind = "PERSISTENCE_ERROR"
)

var kindStatus = map[Kind]int{
	KindUnauthenticated:  http.StatusUnauthorized,
	KindUnauthorized:     http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindConflict:         http.StatusConflict,
	KindInvalidOperation: http.StatusBadRequest,
	KindValidation:       http.StatusUnprocessableEntity,
	KindPersistence:      http.StatusInternalServerError,
}

// Sentinels for errors.Is; a *DomainError matches any sentinel of the same Kind.
var (
	ErrUnauthenticated  = &DomainError{Kind: KindUnauthenticated}
	ErrUnauthorized     = &DomainError{Kind: KindUnauthorized}
	ErrNotFound         = &DomainError{Kind: KindNotFound}
	ErrConflict         = &DomainError{Kind: KindConflict}
	ErrInvalidOperation = &DomainError{Kind: KindInvalidOperation}
	ErrValidation       = &DomainError{Kind: KindValidation}
	ErrPersistence      = &DomainError{Kind: KindPersistence}
)

type DomainError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

func domainError(kind Kind, message string, details any) *DomainError {
	return &DomainError{
		Kind:    kind,
		Status:  kindStatus[kind],
		Code:    string(kind),
		Message: message,
		Details: details,
	}
}

func unauthenticated() *DomainError {
	return domainError(KindUnauthenticated, "Unauthorized", nil)
}

func unauthorized(message string) *DomainError {
	return domainError(KindUnauthorized, message, nil)
}

func notFound(message string) *DomainError {
	return domainError(KindNotFound, message, nil)
}

func conflict(message string) *DomainError {
	return domainError(KindConflict, message, nil)
}

func invalidOperation(message string) *DomainError {
	return domainError(KindInvalidOperation, message, nil)
}

func validation(message string, details any) *DomainError {
	return domainError(KindValidation, message, details)
}

// persistence hides the store failure from clients but keeps it for logs.
func persistence(op string, err error) *DomainError {
	e := domainError(KindPersistence, "Server error", nil)
	e.cause = fmt.Errorf("%s: %w", op, err)
	return e
}
