package errors

import (
	"strings"
)

// ValidationResult holds validation results
type ValidationResult struct {
	IsValid bool
	Errors  []*AppError
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(err *AppError) {
	vr.IsValid = false
	vr.Errors = append(vr.Errors, err)
}

// GetFirstError returns the first error or nil
func (vr *ValidationResult) GetFirstError() *AppError {
	if len(vr.Errors) > 0 {
		return vr.Errors[0]
	}
	return nil
}

// Validator provides validation utilities
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateNoteFields validates the required fields for note creation.
// Validation runs before any I/O; a failing result aborts the operation.
func (v *Validator) ValidateNoteFields(title, className, professorName string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if strings.TrimSpace(title) == "" {
		result.AddError(ErrTitleRequired)
	}
	if strings.TrimSpace(className) == "" {
		result.AddError(ErrClassNameRequired)
	}
	if strings.TrimSpace(professorName) == "" {
		result.AddError(ErrProfessorRequired)
	}

	return result
}

// ValidateNoteID validates note ID format
func (v *Validator) ValidateNoteID(id string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if strings.TrimSpace(id) == "" {
		result.AddError(New(ErrTypeValidation, "ID_EMPTY", "note ID cannot be empty").
			WithUserMessage("Note ID is required"))
	}

	return result
}

// ValidateNoteContent validates note content size
func (v *Validator) ValidateNoteContent(content string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	// Check for extremely large content (> 1MB)
	if len(content) > 1024*1024 {
		result.AddError(New(ErrTypeValidation, "CONTENT_TOO_LARGE", "note content too large").
			WithUserMessage("Note content is too large. Maximum size is 1MB").
			WithContext("size", len(content)))
	}

	return result
}
