package classes

import (
	"strconv"
	"strings"
)

// Class is one row of the studio's weekly class schedule.
type Class struct {
	Name        string `json:"name"`
	AgeRange    string `json:"age_range"` // "5-7", or a single age
	Day         string `json:"day"`
	Time        string `json:"time"`
	Level       string `json:"level,omitempty"`
	Instructor  string `json:"instructor,omitempty"`
	Description string `json:"description,omitempty"`
}

// MatchesAge reports whether the given age falls inside the class's age
// range. Ranges look like "5-7"; a single number means that exact age. An
// unparseable range matches nothing.
func (c Class) MatchesAge(age int) bool {
	spec := strings.TrimSpace(c.AgeRange)
	if spec == "" {
		return false
	}

	if min, max, ok := strings.Cut(spec, "-"); ok {
		lo, err1 := strconv.Atoi(strings.TrimSpace(min))
		hi, err2 := strconv.Atoi(strings.TrimSpace(max))
		if err1 != nil || err2 != nil {
			return false
		}
		return age >= lo && age <= hi
	}

	exact, err := strconv.Atoi(spec)
	if err != nil {
		return false
	}
	return age == exact
}

// MatchesStyle reports whether the class name or description mentions the
// requested style (case-insensitive substring).
func (c Class) MatchesStyle(style string) bool {
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		return false
	}
	return strings.Contains(strings.ToLower(c.Name), style) ||
		strings.Contains(strings.ToLower(c.Description), style)
}

// Recommend filters the catalog by whichever preferences are present. A zero
// age or empty style/day leaves that dimension unconstrained. Preferences are
// never validated beyond presence.
func Recommend(all []Class, age int, style, day string) []Class {
	day = strings.ToLower(strings.TrimSpace(day))

	var out []Class
	for _, c := range all {
		if age > 0 && !c.MatchesAge(age) {
			continue
		}
		if style != "" && !c.MatchesStyle(style) {
			continue
		}
		if day != "" && !strings.Contains(strings.ToLower(c.Day), day) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ResolveNames maps class names suggested by the language model back onto
// real catalog entries, case-insensitive contains in either direction.
// Unknown names are dropped.
func ResolveNames(all []Class, names []string) []Class {
	var out []Class
	for _, name := range names {
		needle := strings.ToLower(strings.TrimSpace(name))
		if needle == "" {
			continue
		}
		for _, c := range all {
			haystack := strings.ToLower(c.Name)
			if strings.Contains(haystack, needle) || strings.Contains(needle, haystack) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
