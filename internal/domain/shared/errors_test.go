package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewConflictError("source %s already reconciled", "bank_movement:1")
	wrapped := fmt.Errorf("confirm: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.True(t, IsConflict(wrapped))
	assert.Equal(t, CodeConflict, CodeOf(wrapped))
}

func TestDomainError_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", NewValidationError("bad kind %q", "x"), IsValidation},
		{"not found", NewNotFoundError("missing"), IsNotFound},
		{"policy", NewPolicyViolation("over", []string{"a"}), IsPolicyViolation},
		{"transient", NewTransientError("budget"), IsTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestDomainError_WithDetails(t *testing.T) {
	base := NewPolicyViolation("rejected", nil)
	withDetails := base.WithDetails(map[string]int{"violations": 2})

	assert.Nil(t, base.Details)
	assert.Equal(t, map[string]int{"violations": 2}, withDetails.Details)
	assert.Equal(t, base.Code, withDetails.Code)
}
