// Package errors provides a lightweight structured error type (SiteBuilderError)
// for category-based classification across the build pipeline and CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a SiteBuilder error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Cache engine errors
	CategoryManifest     ErrorCategory = "manifest"
	CategoryInvalidation ErrorCategory = "invalidation"
	CategoryDependency   ErrorCategory = "dependency"

	// Build and processing errors
	CategoryRender     ErrorCategory = "render"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryWatch    ErrorCategory = "watch"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// SiteBuilderError is a structured error with category, severity, and context
type SiteBuilderError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for SiteBuilderError
type ContextFields map[string]any

// Error implements the error interface
func (e *SiteBuilderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *SiteBuilderError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *SiteBuilderError) WithContext(key string, value any) *SiteBuilderError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new SiteBuilderError
func New(category ErrorCategory, severity ErrorSeverity, message string) *SiteBuilderError {
	return &SiteBuilderError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new SiteBuilderError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *SiteBuilderError {
	return &SiteBuilderError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if sbe, ok := err.(*SiteBuilderError); ok {
		return sbe.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a SiteBuilderError
func GetCategory(err error) ErrorCategory {
	if sbe, ok := err.(*SiteBuilderError); ok {
		return sbe.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error. Used at the invalidation
// gateway boundary: malformed queries are rejected before any manifest mutation.
func ValidationError(message string) *SiteBuilderError {
	return &SiteBuilderError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// ManifestError creates a new manifest error (load/save failures)
func ManifestError(message string) *SiteBuilderError {
	return &SiteBuilderError{
		Category: CategoryManifest,
		Severity: SeverityError,
		Message:  message,
	}
}

// RenderError wraps a per-page render failure
func RenderError(err error, message string) *SiteBuilderError {
	return &SiteBuilderError{
		Category: CategoryRender,
		Severity: SeverityError,
		Message:  message,
		Cause:    err,
	}
}

// FatalFS marks a filesystem failure that prevents any access to the cache
// directory. This is the only failure class that aborts a whole build.
func FatalFS(err error, message string) *SiteBuilderError {
	return &SiteBuilderError{
		Category: CategoryFileSystem,
		Severity: SeverityFatal,
		Message:  message,
		Cause:    err,
	}
}

// IsFatal reports whether err should abort the whole build.
func IsFatal(err error) bool {
	if sbe, ok := err.(*SiteBuilderError); ok {
		return sbe.Severity == SeverityFatal
	}
	return false
}
