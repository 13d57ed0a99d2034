package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdayOf(t *testing.T) {
	// 2024-02-29 was a Thursday; 2025-01-05 a Sunday.
	assert.Equal(t, Thursday, WeekdayOf(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Sunday, WeekdayOf(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Monday, WeekdayOf(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)))
}

func TestParseWeekday(t *testing.T) {
	w, err := ParseWeekday(" monday ")
	require.NoError(t, err)
	assert.Equal(t, Monday, w)

	w, err = ParseWeekday("Saturday")
	require.NoError(t, err)
	assert.Equal(t, Saturday, w)

	_, err = ParseWeekday("FUNDAY")
	assert.ErrorIs(t, err, ErrInvalidWeekday)
}

func TestWeekdayIndex(t *testing.T) {
	assert.Equal(t, 0, Sunday.Index())
	assert.Equal(t, 6, Saturday.Index())
	assert.Equal(t, -1, Weekday("MONDAYS").Index())
	assert.False(t, Weekday("monday").Valid())
}
