package engine

import (
	"errors"
	"fmt"

	"taskboard/internal/repo"
)

// ErrNotFoundOrForbidden is returned when a record does not exist or the
// caller may not touch it. The two cases are never told apart.
var ErrNotFoundOrForbidden = errors.New("not found")

// ValidationError reports missing or invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// hide folds a missing row into ErrNotFoundOrForbidden.
func hide(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFoundOrForbidden
	}
	return err
}
