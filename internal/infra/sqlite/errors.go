package sqlite

import (
	"errors"
	"strings"
)

// ErrAlreadyRegistered is returned when a canonical name or spreadsheet is already taken.
var ErrAlreadyRegistered = errors.New("project already registered")

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
