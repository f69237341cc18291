package tournament

import (
	"fmt"
	"time"
)

// Window is the inclusive time range attempts must fall in to count
type Window struct {
	Start time.Time
	End   time.Time
}

// DefaultWindow is the current tournament season
var DefaultWindow = Window{
	Start: time.Date(2025, time.October, 11, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, time.June, 30, 23, 59, 59, 999_000_000, time.UTC),
}

// Contains reports whether t lies within the window, bounds included
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Validate rejects empty or inverted windows
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("tournament window must have both a start and an end")
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("tournament window ends (%s) before it starts (%s)",
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// YearWindow returns the whole of a calendar year in UTC
func YearWindow(year int) Window {
	return Window{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 23, 59, 59, 999_000_000, time.UTC),
	}
}
