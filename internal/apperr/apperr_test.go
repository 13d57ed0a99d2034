package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	sentinel := New(KindConflict, "slot_already_booked", "slot already booked")
	wrapped := fmt.Errorf("create appointment: %w", sentinel)

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "slot_already_booked", CodeOf(wrapped))
}

func TestKindOfUnclassified(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal_error", CodeOf(err))
	_, ok := As(err)
	assert.False(t, ok)
}

func TestDistinctSentinelsSameKind(t *testing.T) {
	a := New(KindNotFound, "patient_not_found", "patient not found")
	b := New(KindNotFound, "slot_not_found", "slot not found")

	assert.False(t, errors.Is(a, b))
	assert.Equal(t, KindOf(a), KindOf(b))
}
