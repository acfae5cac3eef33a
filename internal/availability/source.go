package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/tdcoflosgatos/studio-assistant/internal/sheets"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

// DefaultTab is the sheet tab holding owner availability, one row per
// weekday: weekday name in the first column, time spec in the second.
const DefaultTab = "Availability"

// Loader fetches availability rules from the studio sheet and keeps a
// Calendar up to date. Rules load once at startup and reload on demand.
type Loader struct {
	reader   sheets.TabReader
	tab      string
	calendar *Calendar
	logger   *logging.Logger
}

// NewLoader creates a loader over the given tab reader. A nil reader is
// allowed; Reload then falls straight back to the sample rules.
func NewLoader(reader sheets.TabReader, tab string, logger *logging.Logger) *Loader {
	if tab == "" {
		tab = DefaultTab
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Loader{
		reader:   reader,
		tab:      tab,
		calendar: NewCalendar(nil),
		logger:   logger,
	}
}

// Calendar returns the calendar backed by the most recent load.
func (l *Loader) Calendar() *Calendar {
	return l.calendar
}

// Reload fetches the availability tab, derives the slot set, and swaps it
// into the calendar. If the sheet is unreachable the sample rules are used
// instead and usedSample is true so callers can tell the user.
func (l *Loader) Reload(ctx context.Context) (usedSample bool, err error) {
	rules, fetchErr := l.fetchRules(ctx)
	if fetchErr != nil {
		l.logger.Warn("availability: sheet unreachable, using sample rules", "error", fetchErr)
		rules = SampleRules()
		usedSample = true
	}

	slots, parseErrs := DeriveSlots(rules)
	for _, perr := range parseErrs {
		l.logger.Warn("availability: dropping unparseable rule", "error", perr)
	}

	l.calendar.Replace(slots)
	l.logger.Info("availability: slots derived",
		"rules", len(rules),
		"slots", len(slots),
		"dropped", len(parseErrs),
		"sample", usedSample,
	)
	if usedSample {
		return true, fetchErr
	}
	return false, nil
}

func (l *Loader) fetchRules(ctx context.Context) ([]Rule, error) {
	if l.reader == nil {
		return nil, fmt.Errorf("availability: no sheet reader configured")
	}

	rows, err := l.reader.ReadTab(ctx, l.tab)
	if err != nil {
		return nil, err
	}

	var rules []Rule
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		wd, err := ParseWeekday(row[0])
		if err != nil {
			// First row is usually a header; anything else is noise.
			if i > 0 {
				l.logger.Debug("availability: skipping row with unknown weekday", "row", i, "value", row[0])
			}
			continue
		}
		rules = append(rules, Rule{Weekday: wd, TimeSpec: row[1]})
	}
	return rules, nil
}

// SampleRules is the static fallback used when the sheet cannot be reached:
// early evening slots on school days, a morning range on Saturday.
func SampleRules() []Rule {
	return []Rule{
		{Weekday: time.Monday, TimeSpec: "4:00 PM - 6:00 PM"},
		{Weekday: time.Tuesday, TimeSpec: "4:00 PM - 6:00 PM"},
		{Weekday: time.Wednesday, TimeSpec: "4:00 PM - 6:00 PM"},
		{Weekday: time.Thursday, TimeSpec: "4:00 PM - 6:00 PM"},
		{Weekday: time.Friday, TimeSpec: "4:00 PM - 6:00 PM"},
		{Weekday: time.Saturday, TimeSpec: "10:00 AM - 12:00 PM"},
		{Weekday: time.Sunday, TimeSpec: "none"},
	}
}
