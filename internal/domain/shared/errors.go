// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Configuration errors are fatal to a whole prediction run.
	ErrConfiguration = errors.New("configuration error")

	// Evaluation errors are confined to a single student.
	ErrEvaluation = errors.New("evaluation error")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "catalog", "artifacts", "student"
	Op      string // Operation that failed, e.g., "Load", "Evaluate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Catalog errors
var (
	ErrCatalogEmpty       = NewDomainError("catalog", "Load", ErrConfiguration, "catalog has no required courses")
	ErrCatalogSchema      = NewDomainError("catalog", "Load", ErrConfiguration, "catalog file is missing required columns")
	ErrInvalidCredit      = NewDomainError("catalog", "Validate", ErrValueOutOfRange, "course credit must be positive")
	ErrDuplicateCourse    = NewDomainError("catalog", "Validate", ErrAlreadyExists, "course listed twice in catalog")
	ErrScoresSchema       = NewDomainError("scores", "Load", ErrConfiguration, "scores file is missing the course name column")
	ErrNoStudents         = NewDomainError("scores", "Load", ErrNotFound, "no usable student rows")
	ErrInvalidGrade       = NewDomainError("scores", "ParseGrade", ErrInvalidFormat, "grade is neither numeric nor a known letter grade")
	ErrGradeOutOfRange    = NewDomainError("scores", "ParseGrade", ErrValueOutOfRange, "grade outside [0,100]")
	ErrStudentNotFound    = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrRunNotFound        = NewDomainError("run", "Find", ErrNotFound, "prediction run not found")
	ErrInvalidGradeBounds = NewDomainError("threshold", "Validate", ErrConfiguration, "min grade must be below max grade and both within [0,100]")
)

// Model artifact errors
var (
	ErrArtifactMissing     = NewDomainError("artifacts", "Load", ErrConfiguration, "model artifact file not found")
	ErrArtifactMalformed   = NewDomainError("artifacts", "Load", ErrConfiguration, "model artifact file is malformed")
	ErrFeatureMismatch     = NewDomainError("artifacts", "Validate", ErrConfiguration, "artifact dimensions do not match feature columns")
	ErrClassCount          = NewDomainError("classifier", "PredictProba", ErrEvaluation, "classifier must return exactly 3 probabilities")
	ErrFeatureLength       = NewDomainError("classifier", "PredictProba", ErrEvaluation, "feature vector length does not match model")
	ErrStudentPanicked     = NewDomainError("student", "Evaluate", ErrEvaluation, "evaluation panicked")
	ErrCacheUnavailable    = NewDomainError("cache", "Request", ErrServiceUnavailable, "result cache is unavailable")
	ErrPersistenceDisabled = NewDomainError("run", "Save", ErrServiceUnavailable, "persistence is disabled")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfiguration checks if the error must abort a whole run.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
