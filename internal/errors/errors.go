// Package errors provides centralized, categorized error construction for
// the playback core, so that errors built with it (the playback package's
// InputError values) carry the same component/category/context shape
// instead of ad-hoc error strings. Load failures are not built here: they
// are recorded as the reason string of a sink's Error state.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// ErrorCategory groups errors for logging and metrics purposes.
type ErrorCategory string

const (
	CategoryGeneric      ErrorCategory = "generic"
	CategoryValidation   ErrorCategory = "validation"
	CategoryNotFound     ErrorCategory = "not-found"
	CategoryConflict     ErrorCategory = "conflict"
	CategoryState        ErrorCategory = "state"
	CategoryResource     ErrorCategory = "resource"
	CategoryBuffer       ErrorCategory = "buffer"
	CategorySink         ErrorCategory = "sink"
	CategoryTimeline     ErrorCategory = "timeline"
	CategoryIngestion    ErrorCategory = "ingestion"
	CategoryInput        ErrorCategory = "input"
	CategoryNetwork      ErrorCategory = "network"
	CategoryTimeout      ErrorCategory = "timeout"
	CategoryCancellation ErrorCategory = "cancellation"
)

// ComponentUnknown is used when no component was attached to the error.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with component/category/context metadata.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time

	mu sync.RWMutex
}

// Error implements the error interface.
func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.Category)
	}
	return ee.Err.Error()
}

// Unwrap exposes the wrapped error for errors.Is/As.
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is reports equality by category when compared against another EnhancedError,
// otherwise defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	var other *EnhancedError
	if stderrors.As(target, &other) {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetContext returns a copy of the error's context map.
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.Context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.Context))
	maps.Copy(out, ee.Context)
	return out
}

// ErrorBuilder is a fluent constructor for EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts building an error wrapping err (which may be nil for a
// sentinel-style error value).
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf is a convenience for New(fmt.Errorf(format, args...)).
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the owning component (e.g. "sink", "timeline", "ingestion").
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context attaches a key/value pair of additional diagnostic context.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build finalizes the EnhancedError.
func (eb *ErrorBuilder) Build() *EnhancedError {
	component := eb.component
	if component == "" {
		component = ComponentUnknown
	}
	category := eb.category
	if category == "" {
		category = CategoryGeneric
	}
	return &EnhancedError{
		Err:       eb.err,
		Component: component,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// Is is a package-level convenience over errors.Is for use by callers that
// only import this package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a package-level convenience over errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
