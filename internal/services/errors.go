package services

import (
	"errors"
	"fmt"

	"github.com/soaringjerry/modern360/internal/models"
)

type ErrorCode string

const (
	ErrorInvalid         ErrorCode = "invalid"
	ErrorForbidden       ErrorCode = "forbidden"
	ErrorNotFound        ErrorCode = "not_found"
	ErrorConflict        ErrorCode = "conflict"
	ErrorUnauthorized    ErrorCode = "unauthorized"
	ErrorTooManyRequests ErrorCode = "too_many_requests"
	ErrorBadGateway      ErrorCode = "bad_gateway"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewTooManyRequestsError(msg string) error {
	return &ServiceError{Code: ErrorTooManyRequests, Message: msg}
}

// NewBadGatewayError reports a failed call to an upstream dependency such as
// the mail transport when the caller needs to know about it.
func NewBadGatewayError(msg string) error {
	return &ServiceError{Code: ErrorBadGateway, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// translateStoreError maps storage sentinels onto service errors, naming the
// entity in the message. Unknown errors pass through untouched.
func translateStoreError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsServiceError(err); ok {
		return err
	}
	var dep *models.DependentsError
	switch {
	case errors.Is(err, models.ErrNotFound):
		return NewNotFoundError(entity + " not found")
	case errors.Is(err, models.ErrProtected):
		return NewForbiddenError("cannot delete system " + entity)
	case errors.Is(err, models.ErrDuplicate):
		return NewConflictError(entity + " already exists")
	case errors.Is(err, models.ErrAlreadyCompleted):
		return NewConflictError("Assessment already completed")
	case errors.As(err, &dep):
		return NewConflictError(fmt.Sprintf("Cannot delete %s: it has %d users and %d assessments", entity, dep.Users, dep.Assessments))
	}
	return err
}
