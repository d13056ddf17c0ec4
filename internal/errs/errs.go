// Package errs provides the unified error taxonomy used for routing and
// retry decisions across the oracle engine (spec §7).
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error classes spec §7 defines for retry routing.
type Kind string

const (
	KindNetwork    Kind = "NetworkError"
	KindDataSource Kind = "DataSourceError"
	KindValidation Kind = "ValidationError"
	KindBlockchain Kind = "BlockchainError"
	KindAuth       Kind = "AuthError"
	KindResource   Kind = "ResourceError"
	KindCircuit    Kind = "CircuitOpen"
	KindUnknown    Kind = "Unknown"
)

// ServiceError is a structured error carrying a Kind, a message, optional
// details, and an unwrap-able cause.
type ServiceError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a detail key/value and returns the same error for chaining.
func (e *ServiceError) WithDetail(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError of the given kind.
func New(kind Kind, message string) *ServiceError {
	return &ServiceError{Kind: kind, Message: message}
}

// Wrap creates a ServiceError of the given kind around an existing error.
func Wrap(kind Kind, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Err: err}
}

// Constructors per kind, mirroring the teacher's per-category helpers.

func Network(message string, err error) *ServiceError {
	return Wrap(KindNetwork, message, err)
}

func DataSource(message string, err error) *ServiceError {
	return Wrap(KindDataSource, message, err)
}

func Validation(message string) *ServiceError {
	return New(KindValidation, message)
}

func Blockchain(message string, err error) *ServiceError {
	return Wrap(KindBlockchain, message, err)
}

func Auth(message string, err error) *ServiceError {
	return Wrap(KindAuth, message, err)
}

func Resource(message string, err error) *ServiceError {
	return Wrap(KindResource, message, err)
}

func CircuitOpen(message string) *ServiceError {
	return New(KindCircuit, message)
}

// Classify extracts the Kind from an error chain, defaulting to KindUnknown
// for errors this package didn't originate.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindUnknown
}

// Retriable reports whether an error of the given kind is retriable at the
// given task priority, per spec §7's policy table.
func Retriable(kind Kind, priority string) bool {
	switch kind {
	case KindNetwork:
		return true
	case KindDataSource, KindCircuit:
		return priority == "Medium" || priority == "High" || priority == "Critical"
	case KindBlockchain:
		return priority == "High" || priority == "Critical"
	case KindResource:
		return priority == "Critical"
	case KindValidation, KindAuth, KindUnknown:
		return false
	default:
		return false
	}
}
