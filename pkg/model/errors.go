package model

import (
	"errors"
	"fmt"
)

// ErrEmptyQueue is returned when popping from an exhausted event partition.
var ErrEmptyQueue = errors.New("event queue is empty")

// ErrOutOfOrder is returned by a strict timeline when an entry would go
// backwards in time.
var ErrOutOfOrder = errors.New("timeline entry out of order")

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the read-only API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewValidationError creates a VALIDATION_ERROR APIError.
func NewValidationError(msg string) *APIError {
	return &APIError{Code: ErrValidation, Message: msg}
}

// IntegrityError reports malformed upstream event generation for one
// (night, site) run. It aborts that run.
type IntegrityError struct {
	Night  NightIndex
	Site   Site
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("scheduling integrity: night %d site %s: %s", e.Night, e.Site, e.Reason)
}

// PipelineError wraps a failure of the planning pipeline during a recompute.
type PipelineError struct {
	Night    NightIndex
	Site     Site
	Timeslot TimeslotIndex
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("plan recompute for night %d site %s at timeslot %d: %v", e.Night, e.Site, e.Timeslot, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
