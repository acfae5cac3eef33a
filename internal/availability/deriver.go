package availability

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// slotIncrement is the granularity used when expanding a time range into
// bookable call slots.
const slotIncrement = 10 * time.Minute

var timeTokenRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*(?:([AaPp])\.?[Mm]\.?)?$`)

// ParseTimeToken parses a single time token. Accepted forms are 12-hour
// "H:MM am/pm" (case-insensitive, optional space before the meridiem) and
// 24-hour "HH:MM". Midnight is {0,0}; "12:00 AM" maps to 00:00 and
// "12:00 PM" stays 12:00.
func ParseTimeToken(token string) (TimeOfDay, error) {
	m := timeTokenRe.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return TimeOfDay{}, &ParseError{Token: token, Reason: "not a recognized time format"}
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return TimeOfDay{}, &ParseError{Token: token, Reason: "bad hour"}
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil {
		return TimeOfDay{}, &ParseError{Token: token, Reason: "bad minute"}
	}
	if minute > 59 {
		return TimeOfDay{}, &ParseError{Token: token, Reason: "minute out of range"}
	}

	switch strings.ToLower(m[3]) {
	case "a":
		if hour < 1 || hour > 12 {
			return TimeOfDay{}, &ParseError{Token: token, Reason: "hour out of range"}
		}
		if hour == 12 {
			hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return TimeOfDay{}, &ParseError{Token: token, Reason: "hour out of range"}
		}
		if hour != 12 {
			hour += 12
		}
	default: // 24-hour form
		if hour > 23 {
			return TimeOfDay{}, &ParseError{Token: token, Reason: "hour out of range"}
		}
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ExpandRange walks from start to end (exclusive) in 10-minute steps and
// emits one slot per step for the given weekday. A range whose end is not
// after its start yields nothing; ranges never wrap across midnight.
func ExpandRange(start, end TimeOfDay, wd time.Weekday) []Slot {
	if end.Minutes() <= start.Minutes() {
		return nil
	}

	step := int(slotIncrement.Minutes())
	slots := make([]Slot, 0, (end.Minutes()-start.Minutes()+step-1)/step)
	for m := start.Minutes(); m < end.Minutes(); m += step {
		t := TimeOfDay{Hour: m / 60, Minute: m % 60}
		slots = append(slots, Slot{
			Weekdays: []time.Weekday{wd},
			Time24:   t.String(),
			Label:    t.Label(),
		})
	}
	return slots
}

// DeriveSlots converts availability rules into the flat bookable slot set.
// A weekday whose spec is empty or "none" contributes nothing. Rules that
// fail to parse are skipped and reported; the remaining rules still derive.
// Duplicate (weekday, time) pairs across rules are collapsed, first rule wins.
func DeriveSlots(rules []Rule) ([]Slot, []error) {
	var (
		slots  []Slot
		errs   []error
		seen   = map[string]struct{}{}
		addAll = func(wd time.Weekday, expanded []Slot) {
			for _, s := range expanded {
				key := strconv.Itoa(int(wd)) + "@" + s.Time24
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				slots = append(slots, s)
			}
		}
	)

	for _, rule := range rules {
		spec := strings.TrimSpace(rule.TimeSpec)
		if spec == "" || strings.EqualFold(spec, "none") {
			continue
		}

		if start, end, ok := splitRange(spec); ok {
			startTime, err := ParseTimeToken(start)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			endTime, err := ParseTimeToken(end)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			addAll(rule.Weekday, ExpandRange(startTime, endTime, rule.Weekday))
			continue
		}

		t, err := ParseTimeToken(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		addAll(rule.Weekday, []Slot{{
			Weekdays: []time.Weekday{rule.Weekday},
			Time24:   t.String(),
			Label:    t.Label(),
		}})
	}

	return slots, errs
}

// splitRange splits "start - end" on the first hyphen. Times themselves never
// contain hyphens, so any hyphen marks a range.
func splitRange(spec string) (start, end string, ok bool) {
	i := strings.Index(spec, "-")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(spec[:i]), strings.TrimSpace(spec[i+1:]), true
}
