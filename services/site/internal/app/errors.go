package app

import (
	"errors"
	"fmt"

	"aercd/pkg/auth"
	"aercd/services/site/internal/chat"
	"aercd/services/site/internal/store"
)

var (
	ErrInvalidCredentials    = auth.ErrInvalidCredentials
	ErrUnauthenticated       = errors.New("authentication required")
	ErrForbidden             = errors.New("forbidden")
	ErrResourceNotFound      = store.ErrResourceNotFound
	ErrDepartmentNotFound    = errors.New("department not found")
	ErrEmptyPatch            = errors.New("no field to update")
	ErrEmptyQuestion         = chat.ErrEmptyQuestion
	ErrQuestionTooLong       = chat.ErrQuestionTooLong
	ErrConversationNotFound  = chat.ErrConversationNotFound
	ErrConversationForbidden = chat.ErrConversationForbidden
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

// ValidationErrors is returned when an input fails validation.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}
