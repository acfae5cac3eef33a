package availability

import (
	"fmt"
	"strings"
	"time"
)

// Rule maps a weekday to the owner's free-text time spec for that day.
// The spec is either "none", a single time ("2:00 PM"), or a range
// ("9:00 AM - 12:00 PM"). Rules come from the availability sheet tab,
// one row per weekday.
type Rule struct {
	Weekday  time.Weekday
	TimeSpec string
}

// TimeOfDay is a clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Minutes returns the time as minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// String renders the time in 24-hour "HH:MM" form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Label renders the time as a 12-hour label, e.g. "2:00 PM".
func (t TimeOfDay) Label() string {
	hour := t.Hour % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "AM"
	if t.Hour >= 12 {
		meridiem = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour, t.Minute, meridiem)
}

// Slot is one bookable time point derived from a rule. Weekdays lists the
// days this slot applies to; Time24 is always on a 10-minute boundary when
// the slot came from a range.
type Slot struct {
	Weekdays []time.Weekday `json:"days"`
	Time24   string         `json:"time"`
	Label    string         `json:"label"`
}

// AppliesTo reports whether the slot is bookable on the given weekday.
func (s Slot) AppliesTo(wd time.Weekday) bool {
	for _, d := range s.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

// ParseError describes a time token that could not be parsed. The offending
// rule is skipped; derivation of the remaining rules continues.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("availability: cannot parse %q: %s", e.Token, e.Reason)
}

// ParseWeekday resolves a weekday name ("Monday", "mon") to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue", "tues":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu", "thur", "thurs":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("availability: unknown weekday %q", name)
}
