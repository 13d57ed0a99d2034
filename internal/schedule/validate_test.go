package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(start, end string) SlotWindow {
	return SlotWindow{Start: MustTimeOfDay(start), End: MustTimeOfDay(end)}
}

func TestValidateSlots(t *testing.T) {
	cases := []struct {
		name    string
		slots   []SlotWindow
		wantErr error
	}{
		{name: "empty", slots: nil},
		{name: "back to back", slots: []SlotWindow{window("09:00", "09:30"), window("09:30", "10:00")}},
		{name: "unordered", slots: []SlotWindow{window("14:00", "15:00"), window("09:00", "10:00")}},
		{name: "inverted", slots: []SlotWindow{window("10:00", "09:00")}, wantErr: ErrInvalidSlot},
		{name: "zero length", slots: []SlotWindow{window("10:00", "10:00")}, wantErr: ErrInvalidSlot},
		{name: "out of day", slots: []SlotWindow{{Start: -1, End: 30}}, wantErr: ErrInvalidSlot},
		{name: "ends at midnight", slots: []SlotWindow{window("23:00", "23:30"), window("23:30", "24:00")}},
		{name: "starts at midnight end", slots: []SlotWindow{{Start: EndOfDay, End: EndOfDay + 30}}, wantErr: ErrInvalidSlot},
		{name: "past midnight end", slots: []SlotWindow{{Start: MustTimeOfDay("23:30"), End: EndOfDay + 1}}, wantErr: ErrInvalidSlot},
		{name: "overlap", slots: []SlotWindow{window("09:00", "10:00"), window("09:59", "10:30")}, wantErr: ErrOverlappingSlots},
		{name: "contained", slots: []SlotWindow{window("09:00", "12:00"), window("10:00", "11:00")}, wantErr: ErrOverlappingSlots},
		{name: "duplicate", slots: []SlotWindow{window("09:00", "10:00"), window("09:00", "10:00")}, wantErr: ErrOverlappingSlots},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSlots(tc.slots)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidateSlotsReportsOffendingPair(t *testing.T) {
	err := ValidateSlots([]SlotWindow{window("08:00", "08:30"), window("09:00", "10:00"), window("09:30", "10:30")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "09:00-10:00 overlaps 09:30-10:30")
}

func TestSplitWindow(t *testing.T) {
	got := SplitWindow(MustTimeOfDay("09:00"), MustTimeOfDay("10:45"), 30)
	assert.Equal(t, []SlotWindow{
		window("09:00", "09:30"),
		window("09:30", "10:00"),
		window("10:00", "10:30"),
	}, got)
	require.NoError(t, ValidateSlots(got))

	assert.Nil(t, SplitWindow(MustTimeOfDay("09:00"), MustTimeOfDay("10:00"), 0))
	assert.Nil(t, SplitWindow(MustTimeOfDay("09:00"), MustTimeOfDay("09:15"), 30))
}
