package persistence

import (
	"errors"
	"strings"

	"github.com/erp/reconciliation/internal/domain/shared"
	"gorm.io/gorm"
)

// isUniqueViolation reports whether err is a unique-constraint failure on any supported driver
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// translateNotFound maps gorm.ErrRecordNotFound to the domain sentinel
func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}
