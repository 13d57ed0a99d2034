package schedule

import "fmt"

// SlotWindow is a bookable time-of-day window [Start, End).
type SlotWindow struct {
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

func (w SlotWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Overlaps uses half-open semantics: back-to-back windows do not overlap.
func (w SlotWindow) Overlaps(o SlotWindow) bool {
	return w.Start < o.End && o.Start < w.End
}

// ValidateSlots rejects inverted or empty windows and any overlapping pair.
// The first offending slot or pair is reported.
func ValidateSlots(slots []SlotWindow) error {
	for i, s := range slots {
		if !s.Start.Valid() || !s.End.ValidEnd() {
			return fmt.Errorf("%w: slot %d (%s) has a time outside the day", ErrInvalidSlot, i+1, s)
		}
		if s.End <= s.Start {
			return fmt.Errorf("%w: slot %d (%s) must end after it starts", ErrInvalidSlot, i+1, s)
		}
	}

	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			if slots[i].Overlaps(slots[j]) {
				return fmt.Errorf("%w: %s overlaps %s", ErrOverlappingSlots, slots[i], slots[j])
			}
		}
	}
	return nil
}

// SplitWindow cuts [open, close) into back-to-back windows of length
// minutes. A trailing remainder shorter than length is dropped.
func SplitWindow(open, close TimeOfDay, length int) []SlotWindow {
	if length <= 0 {
		return nil
	}
	var out []SlotWindow
	for start := open; start+TimeOfDay(length) <= close; start += TimeOfDay(length) {
		out = append(out, SlotWindow{Start: start, End: start + TimeOfDay(length)})
	}
	return out
}
