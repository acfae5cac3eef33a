package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdcoflosgatos/studio-assistant/internal/availability"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

type fakeSink struct {
	mu          sync.Mutex
	err         error
	delivered   []Submission
	summaries   []Submission
	summaryDone chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{summaryDone: make(chan struct{}, 8)}
}

func (s *fakeSink) Deliver(_ context.Context, sub Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, sub)
	return nil
}

func (s *fakeSink) DeliverSummary(_ context.Context, sub Submission) {
	s.mu.Lock()
	s.summaries = append(s.summaries, sub)
	s.mu.Unlock()
	s.summaryDone <- struct{}{}
}

func saturdaySlot() *availability.Slot {
	return &availability.Slot{
		Weekdays: []time.Weekday{time.Saturday},
		Time24:   "10:00",
		Label:    "10:00 AM",
	}
}

func newTestMachine(sink Sink) *Machine {
	return NewMachine(sink, func(context.Context) string { return "Customer: hi" }, logging.New("error"))
}

func TestSubmitContact_Valid(t *testing.T) {
	m := newTestMachine(newFakeSink())
	require.Equal(t, StatusCollectingContact, m.Status())

	require.NoError(t, m.SubmitContact("Jo Smith", "jo@example.com", "(408) 555-0101"))
	assert.Equal(t, StatusChoosingSlot, m.Status())
}

func TestSubmitContact_Invalid(t *testing.T) {
	tests := []struct {
		name, contact, email, phone, field string
	}{
		{"empty name", "", "jo@example.com", "5550101", "name"},
		{"empty email", "Jo", "", "5550101", "email"},
		{"bad email", "Jo", "bad-email", "5550101", "email"},
		{"missing tld", "Jo", "jo@example", "5550101", "email"},
		{"empty phone", "Jo", "jo@example.com", "", "phone"},
		{"short phone", "Jo", "jo@example.com", "555", "phone"},
		{"alphabetic phone", "Jo", "jo@example.com", "call me maybe", "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(newFakeSink())
			err := m.SubmitContact(tt.contact, tt.email, tt.phone)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, StatusCollectingContact, m.Status())
		})
	}
}

func TestConfirm_RequiresDateAndSlot(t *testing.T) {
	m := newTestMachine(newFakeSink())
	require.NoError(t, m.SubmitContact("Jo", "jo@example.com", "5550101234"))

	err := m.Confirm(context.Background())
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusChoosingSlot, m.Status())

	require.NoError(t, m.Select("2026-03-07", nil))
	require.ErrorAs(t, m.Confirm(context.Background()), &terr)
	assert.Equal(t, StatusChoosingSlot, m.Status())
}

func TestConfirm_HappyPath(t *testing.T) {
	sink := newFakeSink()
	m := newTestMachine(sink)

	require.NoError(t, m.SubmitContact("Jo", "jo@example.com", "5550101234"))
	require.NoError(t, m.Select("2026-03-07", saturdaySlot()))
	require.NoError(t, m.Confirm(context.Background()))
	require.Equal(t, StatusConfirmingSlot, m.Status())

	require.NoError(t, m.Confirm(context.Background()))
	assert.Equal(t, StatusConfirmed, m.Status())

	require.Len(t, sink.delivered, 1)
	sub := sink.delivered[0]
	assert.Equal(t, "Jo", sub.Name)
	assert.Equal(t, "jo@example.com", sub.Email)
	assert.Equal(t, "2026-03-07", sub.Date)
	assert.Equal(t, "10:00 AM", sub.SlotLabel)
	assert.Equal(t, "Customer: hi", sub.ConversationSummary)

	_, err := time.Parse(time.RFC3339, sub.Timestamp)
	assert.NoError(t, err)

	// The secondary summary notification fires after success.
	select {
	case <-sink.summaryDone:
	case <-time.After(time.Second):
		t.Fatal("secondary notification was never requested")
	}
}

func TestConfirm_SinkFailure(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.New("smtp down")
	m := newTestMachine(sink)

	require.NoError(t, m.SubmitContact("Jo", "jo@example.com", "5550101234"))
	require.NoError(t, m.Select("2026-03-07", saturdaySlot()))
	require.NoError(t, m.Confirm(context.Background()))

	err := m.Confirm(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, m.Status())

	// Draft fields survive the failure so the user never re-enters them.
	draft := m.Draft()
	assert.Equal(t, "Jo", draft.ContactName)
	assert.Equal(t, "2026-03-07", draft.SelectedDate)
	require.NotNil(t, draft.SelectedSlot)

	// A user-initiated retry goes back through confirmation and succeeds.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	require.NoError(t, m.Retry())
	require.Equal(t, StatusConfirmingSlot, m.Status())
	require.NoError(t, m.Confirm(context.Background()))
	assert.Equal(t, StatusConfirmed, m.Status())
	assert.Len(t, sink.delivered, 1)
}

func TestChange_ReturnsToChoosing(t *testing.T) {
	m := newTestMachine(newFakeSink())
	require.NoError(t, m.SubmitContact("Jo", "jo@example.com", "5550101234"))
	require.NoError(t, m.Select("2026-03-07", saturdaySlot()))
	require.NoError(t, m.Confirm(context.Background()))

	require.NoError(t, m.Change())
	assert.Equal(t, StatusChoosingSlot, m.Status())

	// Re-select a different day, then confirm again.
	require.NoError(t, m.Select("2026-03-14", saturdaySlot()))
	require.NoError(t, m.Confirm(context.Background()))
	assert.Equal(t, StatusConfirmingSlot, m.Status())
}

func TestCancel(t *testing.T) {
	m := newTestMachine(newFakeSink())
	require.NoError(t, m.SubmitContact("Jo", "jo@example.com", "5550101234"))
	require.NoError(t, m.Cancel())
	assert.Equal(t, StatusCollectingContact, m.Status())
	assert.Empty(t, m.Draft().ContactName)
}

func TestSelect_DateReselectClearsUnavailableSlot(t *testing.T) {
	m := newTestMachine(newFakeSink())
	require.NoError(t, m.SubmitContact("Jo", "jo@example.com", "5550101234"))
	require.NoError(t, m.Select("2026-03-07", saturdaySlot()))

	// Switching to a Sunday drops the Saturday-only slot; the user has to
	// pick again from the new day's times.
	require.NoError(t, m.Select("2026-03-08", nil))
	assert.Nil(t, m.Draft().SelectedSlot)
	assert.Equal(t, "2026-03-08", m.Draft().SelectedDate)

	var terr *TransitionError
	require.ErrorAs(t, m.Confirm(context.Background()), &terr)
	assert.Equal(t, StatusChoosingSlot, m.Status())
}

func TestSelect_DateReselectKeepsApplicableSlot(t *testing.T) {
	m := newTestMachine(newFakeSink())
	require.NoError(t, m.SubmitContact("Jo", "jo@example.com", "5550101234"))
	require.NoError(t, m.Select("2026-03-07", saturdaySlot()))

	// Another Saturday still offers the chosen time.
	require.NoError(t, m.Select("2026-03-14", nil))
	require.NotNil(t, m.Draft().SelectedSlot)
	require.NoError(t, m.Confirm(context.Background()))
	assert.Equal(t, StatusConfirmingSlot, m.Status())
}

func TestConfirm_RejectsSlotNotOfferedOnDate(t *testing.T) {
	sink := newFakeSink()
	m := newTestMachine(sink)
	require.NoError(t, m.SubmitContact("Jo", "jo@example.com", "5550101234"))
	require.NoError(t, m.Select("2026-03-08", saturdaySlot()))

	err := m.Confirm(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "time", verr.Field)
	assert.Equal(t, StatusChoosingSlot, m.Status())
	assert.Empty(t, sink.delivered)
}

func TestSelect_InvalidOutsideChoosing(t *testing.T) {
	m := newTestMachine(newFakeSink())
	var terr *TransitionError
	require.ErrorAs(t, m.Select("2026-03-07", saturdaySlot()), &terr)
	require.ErrorAs(t, m.Change(), &terr)
	require.ErrorAs(t, m.Retry(), &terr)
}
