package availability

import (
	"sync"
	"time"
)

// DefaultWindowDays is how many days the booking calendar shows by default.
const DefaultWindowDays = 7

// Day is one selectable calendar day in the rolling booking window.
type Day struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Weekday   string `json:"weekday"`
	IsToday   bool   `json:"is_today"`
	Available bool   `json:"available"`
	Slots     []Slot `json:"slots"`
}

// Calendar answers weekday slot lookups over the current derived slot set.
// The slot set is read-only between reloads; Replace swaps it atomically so a
// manual availability refresh never races an in-flight lookup.
type Calendar struct {
	mu    sync.RWMutex
	slots []Slot
}

// NewCalendar builds a calendar over the given derived slots.
func NewCalendar(slots []Slot) *Calendar {
	return &Calendar{slots: slots}
}

// Replace swaps in a freshly derived slot set.
func (c *Calendar) Replace(slots []Slot) {
	c.mu.Lock()
	c.slots = slots
	c.mu.Unlock()
}

// SlotsForWeekday returns the slots bookable on the given weekday, in the
// order they were derived. Pure with respect to the current slot set.
func (c *Calendar) SlotsForWeekday(wd time.Weekday) []Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Slot
	for _, s := range c.slots {
		if s.AppliesTo(wd) {
			out = append(out, s)
		}
	}
	return out
}

// Window generates a rolling window of days consecutive calendar days
// starting at today, in the viewer's local time. Days with no weekday slots
// are marked unavailable.
func (c *Calendar) Window(today time.Time, days int) []Day {
	if days <= 0 {
		days = DefaultWindowDays
	}

	out := make([]Day, 0, days)
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, i)
		slots := c.SlotsForWeekday(date.Weekday())
		out = append(out, Day{
			Date:      date.Format("2006-01-02"),
			Weekday:   date.Weekday().String(),
			IsToday:   i == 0,
			Available: len(slots) > 0,
			Slots:     slots,
		})
	}
	return out
}
