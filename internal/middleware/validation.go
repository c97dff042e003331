package middleware

import (
	"errors"

	"github.com/google/uuid"
)

// ValidateSessionID validates a conversation session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateLimit bounds a pagination limit, substituting def when unset.
func ValidateLimit(limit, def, max int) (int, error) {
	if limit == 0 {
		return def, nil
	}
	if limit < 0 || limit > max {
		return 0, errors.New("limit out of range")
	}
	return limit, nil
}
