// Package booking drives the consultation call booking flow: a per-session
// state machine that collects contact details, offers derived availability
// slots, and hands the confirmed submission to a notification sink.
package booking

import (
	"fmt"

	"github.com/tdcoflosgatos/studio-assistant/internal/availability"
)

// Status is the booking flow state. One draft walks CollectingContact →
// ChoosingSlot → ConfirmingSlot → Submitting → Confirmed, with Failed as the
// recoverable branch of Submitting.
type Status string

const (
	StatusCollectingContact Status = "collecting_contact"
	StatusChoosingSlot      Status = "choosing_slot"
	StatusConfirmingSlot    Status = "confirming_slot"
	StatusSubmitting        Status = "submitting"
	StatusConfirmed         Status = "confirmed"
	StatusFailed            Status = "failed"
)

// Draft is the in-progress booking record. It is owned by exactly one chat
// session's Machine and is discarded on cancel, successful confirm, or
// session end. Never shared across sessions.
type Draft struct {
	ContactName  string
	ContactEmail string
	ContactPhone string
	SelectedDate string // YYYY-MM-DD, empty until chosen
	SelectedSlot *availability.Slot
	Status       Status
}

// ValidationError reports which contact field failed validation. It blocks
// the state transition; the message is shown inline next to the field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: invalid %s: %s", e.Field, e.Reason)
}

// TransitionError reports a transition request that is not valid from the
// draft's current state.
type TransitionError struct {
	From    Status
	Request string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking: cannot %s from state %s", e.Request, e.From)
}
