package booking

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/tdcoflosgatos/studio-assistant/internal/availability"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

// Submission is the payload handed to the notification sink when the user
// confirms a call booking.
type Submission struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Date                string `json:"date"` // YYYY-MM-DD
	SlotLabel           string `json:"time"`
	ConversationSummary string `json:"conversation_summary,omitempty"`
	Timestamp           string `json:"timestamp"` // ISO-8601
}

// Sink delivers a finalized booking to the outside world. Deliver is the
// primary, synchronous notification; its error moves the machine to Failed.
// DeliverSummary is the best-effort secondary notification whose failure
// never affects a confirmed booking.
type Sink interface {
	Deliver(ctx context.Context, sub Submission) error
	DeliverSummary(ctx context.Context, sub Submission)
}

// SummaryFunc supplies the human-readable conversation summary included in
// the submission. Optional.
type SummaryFunc func(ctx context.Context) string

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
var phoneStripRe = regexp.MustCompile(`[\s\-().+]`)

// Machine walks one user's booking flow. It owns its Draft exclusively for
// the lifetime of the chat session; there is no cross-session sharing and no
// concurrent use, so no locking.
type Machine struct {
	draft     Draft
	sink      Sink
	summarize SummaryFunc
	logger    *logging.Logger
}

// NewMachine starts a booking flow in CollectingContact.
func NewMachine(sink Sink, summarize SummaryFunc, logger *logging.Logger) *Machine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Machine{
		draft:     Draft{Status: StatusCollectingContact},
		sink:      sink,
		summarize: summarize,
		logger:    logger,
	}
}

// Draft returns a copy of the current draft.
func (m *Machine) Draft() Draft {
	return m.draft
}

// Status returns the current flow state.
func (m *Machine) Status() Status {
	return m.draft.Status
}

// SubmitContact validates the three contact fields and, if all pass, moves
// CollectingContact → ChoosingSlot. A validation failure keeps the state and
// identifies the offending field.
func (m *Machine) SubmitContact(name, email, phone string) error {
	if m.draft.Status != StatusCollectingContact {
		return &TransitionError{From: m.draft.Status, Request: "submit contact"}
	}

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)

	if name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if email == "" {
		return &ValidationError{Field: "email", Reason: "required"}
	}
	if !emailRe.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "must look like name@example.com"}
	}
	if phone == "" {
		return &ValidationError{Field: "phone", Reason: "required"}
	}
	if digits := phoneStripRe.ReplaceAllString(phone, ""); len(digits) < 7 || len(digits) > 15 || strings.ContainsFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) {
		return &ValidationError{Field: "phone", Reason: "must contain 7 to 15 digits"}
	}

	m.draft.ContactName = name
	m.draft.ContactEmail = email
	m.draft.ContactPhone = phone
	m.draft.Status = StatusChoosingSlot
	m.logger.Debug("booking: contact accepted")
	return nil
}

// Select records a date and/or time slot choice. Valid only while choosing;
// re-selection simply overwrites the previous choice.
func (m *Machine) Select(date string, slot *availability.Slot) error {
	if m.draft.Status != StatusChoosingSlot {
		return &TransitionError{From: m.draft.Status, Request: "select slot"}
	}
	if date != "" {
		m.draft.SelectedDate = date
	}
	if slot != nil {
		m.draft.SelectedSlot = slot
	}
	// A date-only re-selection invalidates a slot the new weekday does not
	// offer; the widget re-renders the time list for the new day.
	if slot == nil && m.draft.SelectedSlot != nil && m.draft.SelectedDate != "" {
		if day, err := time.Parse("2006-01-02", m.draft.SelectedDate); err == nil && !m.draft.SelectedSlot.AppliesTo(day.Weekday()) {
			m.draft.SelectedSlot = nil
		}
	}
	return nil
}

// Confirm advances the flow. From ChoosingSlot it requires both a date and a
// slot and moves to ConfirmingSlot. From ConfirmingSlot it enters Submitting
// and calls the sink exactly once; the sink's result decides Confirmed or
// Failed. There is no automatic retry — a fresh user confirm is the only
// retry path.
func (m *Machine) Confirm(ctx context.Context) error {
	switch m.draft.Status {
	case StatusChoosingSlot:
		if m.draft.SelectedDate == "" || m.draft.SelectedSlot == nil {
			return &TransitionError{From: m.draft.Status, Request: "confirm without date and time"}
		}
		if day, err := time.Parse("2006-01-02", m.draft.SelectedDate); err != nil || !m.draft.SelectedSlot.AppliesTo(day.Weekday()) {
			return &ValidationError{Field: "time", Reason: "pick a time offered on the selected day"}
		}
		m.draft.Status = StatusConfirmingSlot
		return nil

	case StatusConfirmingSlot:
		m.draft.Status = StatusSubmitting
		return m.submit(ctx)

	default:
		return &TransitionError{From: m.draft.Status, Request: "confirm"}
	}
}

// Change returns from the confirmation summary to slot selection.
func (m *Machine) Change() error {
	if m.draft.Status != StatusConfirmingSlot {
		return &TransitionError{From: m.draft.Status, Request: "change selection"}
	}
	m.draft.Status = StatusChoosingSlot
	return nil
}

// Retry returns a failed submission to the confirmation step so the user can
// confirm again without re-entering contact info.
func (m *Machine) Retry() error {
	if m.draft.Status != StatusFailed {
		return &TransitionError{From: m.draft.Status, Request: "retry"}
	}
	m.draft.Status = StatusConfirmingSlot
	return nil
}

// Cancel abandons the flow and discards the draft. Allowed from any
// non-terminal state; there are no cleanup side effects beyond this.
func (m *Machine) Cancel() error {
	switch m.draft.Status {
	case StatusConfirmed:
		return &TransitionError{From: m.draft.Status, Request: "cancel"}
	}
	m.draft = Draft{Status: StatusCollectingContact}
	return nil
}

func (m *Machine) submit(ctx context.Context) error {
	sub := Submission{
		Name:      m.draft.ContactName,
		Email:     m.draft.ContactEmail,
		Phone:     m.draft.ContactPhone,
		Date:      m.draft.SelectedDate,
		SlotLabel: m.draft.SelectedSlot.Label,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if m.summarize != nil {
		sub.ConversationSummary = m.summarize(ctx)
	}

	if err := m.sink.Deliver(ctx, sub); err != nil {
		m.draft.Status = StatusFailed
		m.logger.Error("booking: delivery failed", "error", err)
		return err
	}

	m.draft.Status = StatusConfirmed
	m.logger.Info("booking: confirmed", "date", sub.Date, "time", sub.SlotLabel)

	// Secondary confirmation is best-effort; a failure there never unwinds
	// the confirmed state.
	go m.sink.DeliverSummary(context.WithoutCancel(ctx), sub)
	return nil
}
