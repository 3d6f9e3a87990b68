package app

import (
	"fmt"
	"net/http"
)

// Error codes carried in API error bodies.
const (
	codeInvalidBody  = "INVALID_BODY"
	codeNotFound     = "NOT_FOUND"
	codeValidation   = "VALIDATION_ERROR"
	codeUnauthorized = "UNAUTHORIZED"
	codeServer       = "SERVER_ERROR"
)

// DomainError is an error the service layer already classified; mapError
// passes it through to the response untouched.
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

func validationError(message string) *DomainError {
	return &DomainError{
		Status:  http.StatusUnprocessableEntity,
		Code:    codeValidation,
		Message: message,
	}
}

func notFoundError(message string) *DomainError {
	return &DomainError{
		Status:  http.StatusNotFound,
		Code:    codeNotFound,
		Message: message,
	}
}
