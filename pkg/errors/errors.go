package errors

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Storage errors (object store unavailable or misused)
	ErrTypeStorage ErrorType = "storage"
	// Validation errors
	ErrTypeValidation ErrorType = "validation"
	// Network/remote backend errors
	ErrTypeNetwork ErrorType = "network"
	// Audio capture errors
	ErrTypeCapture ErrorType = "capture"
	// Configuration errors
	ErrTypeConfig ErrorType = "configuration"
	// Generic application errors
	ErrTypeApp ErrorType = "application"
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType              `json:"type"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	UserMessage string                 `json:"userMessage"`
	InternalErr error                  `json:"-"`
	Retryable   bool                   `json:"retryable"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.InternalErr != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.InternalErr)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As
func (e *AppError) Unwrap() error {
	return e.InternalErr
}

// Is matches two AppErrors by type and code, so predefined errors
// compare equal to their WithContext copies
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type && e.Code == other.Code
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// WithContext returns a copy of the error with added context, leaving
// the predefined error values untouched
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	clone := *e
	clone.Context = make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

// WithInternal returns a copy of the error wrapping an underlying cause
func (e *AppError) WithInternal(err error) *AppError {
	clone := *e
	clone.InternalErr = err
	return &clone
}

// Log logs the error with appropriate level
func (e *AppError) Log() {
	contextStr := ""
	if len(e.Context) > 0 {
		var parts []string
		for k, v := range e.Context {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		contextStr = fmt.Sprintf(" [%s]", strings.Join(parts, ", "))
	}

	log.Printf("ERROR [%s:%s] %s%s", e.Type, e.Code, e.Error(), contextStr)
}

// New creates a new AppError
func New(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:        errType,
		Code:        code,
		Message:     message,
		InternalErr: err,
	}
}

// Predefined errors for common scenarios
var (
	// Storage errors
	ErrStorageUnavailable = New(ErrTypeStorage, "STORAGE_UNAVAILABLE", "object store could not be opened").
				WithUserMessage("Local storage is unavailable. Notes cannot be saved on this device")

	ErrNotInitialized = New(ErrTypeStorage, "NOT_INITIALIZED", "object store not initialized").
				WithUserMessage("Local storage is unavailable. Notes cannot be saved on this device")

	ErrNoteNotFound = New(ErrTypeStorage, "NOTE_NOT_FOUND", "note not found").
			WithUserMessage("The requested note could not be found")

	// Validation errors
	ErrTitleRequired = New(ErrTypeValidation, "TITLE_REQUIRED", "note title is required").
				WithUserMessage("Please enter a title for the note")

	ErrClassNameRequired = New(ErrTypeValidation, "CLASS_REQUIRED", "class name is required").
				WithUserMessage("Please enter the class name")

	ErrProfessorRequired = New(ErrTypeValidation, "PROFESSOR_REQUIRED", "professor name is required").
				WithUserMessage("Please enter the professor's name")

	ErrInvalidCategory = New(ErrTypeValidation, "CATEGORY_INVALID", "unknown note category").
				WithUserMessage("Please pick a valid category")

	// Remote mirror errors. Both collapse to the same local fallback
	// path; an unreachable backend is additionally marked retryable
	// since the very next request attempts the network again.
	ErrNetworkFailure = New(ErrTypeNetwork, "NETWORK_FAILURE", "remote backend unreachable").
				WithUserMessage("Working offline. Changes are saved on this device").
				WithRetryable(true)

	ErrServerError = New(ErrTypeNetwork, "SERVER_ERROR", "remote backend returned an error").
			WithUserMessage("Working offline. Changes are saved on this device")

	// Capture errors
	ErrPermissionDenied = New(ErrTypeCapture, "PERMISSION_DENIED", "microphone permission denied").
				WithUserMessage("Microphone access was denied. Allow access to record audio")

	ErrNoActiveRecording = New(ErrTypeCapture, "NO_ACTIVE_RECORDING", "no recording in progress").
				WithUserMessage("There is no recording to stop")

	// Configuration errors
	ErrConfigLoadFailed = New(ErrTypeConfig, "CONFIG_LOAD_FAILED", "failed to load configuration").
				WithUserMessage("Configuration file could not be loaded. Using defaults")
)

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// WithRetryable marks the error as retryable
func (e *AppError) WithRetryable(retryable bool) *AppError {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if the error can be retried
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}
