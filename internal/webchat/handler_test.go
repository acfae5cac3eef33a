package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdcoflosgatos/studio-assistant/internal/availability"
	"github.com/tdcoflosgatos/studio-assistant/internal/booking"
	"github.com/tdcoflosgatos/studio-assistant/internal/classes"
	"github.com/tdcoflosgatos/studio-assistant/internal/conversation"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

type scriptedLLM struct {
	text string
	err  error
}

func (s *scriptedLLM) Complete(_ context.Context, _ conversation.LLMRequest) (conversation.LLMResponse, error) {
	if s.err != nil {
		return conversation.LLMResponse{}, s.err
	}
	return conversation.LLMResponse{Text: s.text}, nil
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []booking.Submission
	err       error
}

func (f *fakeSink) Deliver(_ context.Context, sub booking.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, sub)
	return nil
}

func (f *fakeSink) DeliverSummary(_ context.Context, _ booking.Submission) {}

type emptyReader struct{}

func (emptyReader) ReadTab(_ context.Context, _ string) ([][]string, error) {
	return nil, nil
}

// testHandler wires a handler over a saturday-only calendar and a scripted
// model. 2026-09-05 is a Saturday.
func testHandler(t *testing.T, llm conversation.LLMClient, sink booking.Sink) *Handler {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logging.New("error")

	catalog := classes.NewCatalog(emptyReader{}, rdb, logger)
	engine := conversation.NewEngine(llm, rdb, catalog, nil, nil, logger)

	slots, errs := availability.DeriveSlots([]availability.Rule{
		{Weekday: time.Saturday, TimeSpec: "10:00-10:30"},
	})
	require.Empty(t, errs)
	calendar := availability.NewCalendar(slots)

	sessions := NewSessionStore(func(conversationID string) *booking.Machine {
		return booking.NewMachine(sink, func(ctx context.Context) string {
			return engine.Summary(ctx, conversationID)
		}, logger)
	})

	h := NewHandler(engine, calendar, sessions, 7, []byte("// widget"), logger)
	h.now = func() time.Time { return time.Date(2026, 9, 5, 9, 0, 0, 0, time.UTC) }
	return h
}

func continueLLM() *scriptedLLM {
	return &scriptedLLM{text: `{"message":"Happy to help!","action":"continue","preferences":{"age":6}}`}
}

func frameOfType(t *testing.T, frames []OutboundMessage, typ string) OutboundMessage {
	t.Helper()
	for _, f := range frames {
		if f.Type == typ {
			return f
		}
	}
	t.Fatalf("no %q frame in %+v", typ, frames)
	return OutboundMessage{}
}

func TestHandleChat_RepliesAndTracksPreferences(t *testing.T) {
	h := testHandler(t, continueLLM(), &fakeSink{})
	sess := h.sessions.Get("")

	frames := h.handle(context.Background(), sess, InboundMessage{Type: "message", Text: "hi"})

	assert.Equal(t, "typing", frames[0].Type)
	reply := frameOfType(t, frames, "message")
	assert.Equal(t, "Happy to help!", reply.Text)
	assert.Equal(t, "continue", reply.Action)
	assert.Equal(t, 6, sess.Preferences.Age)
}

func TestHandleChat_ScheduleCallPushesCalendar(t *testing.T) {
	llm := &scriptedLLM{text: `{"message":"Let's book it!","action":"schedule_call","preferences":{}}`}
	h := testHandler(t, llm, &fakeSink{})
	sess := h.sessions.Get("")

	frames := h.handle(context.Background(), sess, InboundMessage{Type: "message", Text: "yes please"})

	cal := frameOfType(t, frames, "calendar")
	require.Len(t, cal.Calendar, 7)
	sat := cal.Calendar[0]
	assert.Equal(t, "2026-09-05", sat.Date)
	assert.True(t, sat.Available)
	require.Len(t, sat.Slots, 3)

	state := frameOfType(t, frames, "booking_state")
	assert.Equal(t, "collecting_contact", state.Booking.Status)
}

func TestBookingFlow_EndToEnd(t *testing.T) {
	sink := &fakeSink{}
	h := testHandler(t, continueLLM(), sink)
	sess := h.sessions.Get("")
	ctx := context.Background()

	frames := h.handle(ctx, sess, InboundMessage{
		Type: "booking_contact", Name: "Jane", Email: "jane@example.com", Phone: "408-555-0100",
	})
	assert.Equal(t, "choosing_slot", frames[0].Booking.Status)

	frames = h.handle(ctx, sess, InboundMessage{Type: "booking_select", Date: "2026-09-05", Time: "10:10"})
	require.Empty(t, frames[0].Text)
	assert.Equal(t, "10:10", frames[0].Booking.Time)
	assert.Equal(t, "10:10 AM", frames[0].Booking.Label)

	frames = h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
	assert.Equal(t, "confirming_slot", frames[0].Booking.Status)

	frames = h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
	assert.Equal(t, "confirmed", frames[0].Booking.Status)

	require.Len(t, sink.delivered, 1)
	assert.Equal(t, "Jane", sink.delivered[0].Name)
	assert.Equal(t, "2026-09-05", sink.delivered[0].Date)
	assert.Equal(t, "10:10 AM", sink.delivered[0].SlotLabel)
}

func TestBookingContact_ValidationErrorIsInline(t *testing.T) {
	h := testHandler(t, continueLLM(), &fakeSink{})
	sess := h.sessions.Get("")

	frames := h.handle(context.Background(), sess, InboundMessage{
		Type: "booking_contact", Name: "Jane", Email: "not-an-email", Phone: "408-555-0100",
	})

	require.Len(t, frames, 1)
	assert.Equal(t, "email", frames[0].Field)
	assert.NotEmpty(t, frames[0].Text)
	assert.Equal(t, "collecting_contact", frames[0].Booking.Status)
}

func TestBookingSelect_RejectsUnknownSlot(t *testing.T) {
	h := testHandler(t, continueLLM(), &fakeSink{})
	sess := h.sessions.Get("")
	ctx := context.Background()

	h.handle(ctx, sess, InboundMessage{
		Type: "booking_contact", Name: "Jane", Email: "jane@example.com", Phone: "408-555-0100",
	})

	// Sunday has no slots, and 10:10 only exists on Saturday.
	frames := h.handle(ctx, sess, InboundMessage{Type: "booking_select", Date: "2026-09-06", Time: "10:10"})
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, "choosing_slot", frames[0].Booking.Status)
}

func TestBookingSelect_DateReselectClearsSlot(t *testing.T) {
	sink := &fakeSink{}
	h := testHandler(t, continueLLM(), sink)
	sess := h.sessions.Get("")
	ctx := context.Background()

	h.handle(ctx, sess, InboundMessage{
		Type: "booking_contact", Name: "Jane", Email: "jane@example.com", Phone: "408-555-0100",
	})
	h.handle(ctx, sess, InboundMessage{Type: "booking_select", Date: "2026-09-05", Time: "10:00"})

	// Clicking a Sunday date drops the Saturday time; the widget shows the
	// new day's (empty) slot list.
	frames := h.handle(ctx, sess, InboundMessage{Type: "booking_select", Date: "2026-09-06"})
	assert.Empty(t, frames[0].Booking.Time)
	assert.Equal(t, "2026-09-06", frames[0].Booking.Date)

	frames = h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
	assert.NotEmpty(t, frames[0].Text)
	assert.Equal(t, "choosing_slot", frames[0].Booking.Status)
	assert.Empty(t, sink.delivered, "a slot the day does not offer must never reach the sink")
}

func TestBookingFlow_SecondBookingAfterConfirm(t *testing.T) {
	sink := &fakeSink{}
	h := testHandler(t, continueLLM(), sink)
	sess := h.sessions.Get("")
	ctx := context.Background()

	book := func(date, slot string) {
		h.handle(ctx, sess, InboundMessage{
			Type: "booking_contact", Name: "Jane", Email: "jane@example.com", Phone: "408-555-0100",
		})
		h.handle(ctx, sess, InboundMessage{Type: "booking_select", Date: date, Time: slot})
		h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
		frames := h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
		require.Equal(t, "confirmed", frames[0].Booking.Status)
	}

	book("2026-09-05", "10:00")

	// The confirmed frame is the receipt; the session starts the next
	// booking from a clean machine.
	frames := h.handle(ctx, sess, InboundMessage{
		Type: "booking_contact", Name: "Jane", Email: "jane@example.com", Phone: "408-555-0100",
	})
	assert.Equal(t, "choosing_slot", frames[0].Booking.Status)

	h.handle(ctx, sess, InboundMessage{Type: "booking_select", Date: "2026-09-12", Time: "10:10"})
	h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
	frames = h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
	assert.Equal(t, "confirmed", frames[0].Booking.Status)

	require.Len(t, sink.delivered, 2)
	assert.Equal(t, "2026-09-12", sink.delivered[1].Date)
}

func TestBookingConfirm_FailureThenRetry(t *testing.T) {
	sink := &fakeSink{err: assert.AnError}
	h := testHandler(t, continueLLM(), sink)
	sess := h.sessions.Get("")
	ctx := context.Background()

	h.handle(ctx, sess, InboundMessage{
		Type: "booking_contact", Name: "Jane", Email: "jane@example.com", Phone: "408-555-0100",
	})
	h.handle(ctx, sess, InboundMessage{Type: "booking_select", Date: "2026-09-05", Time: "10:00"})
	h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})

	frames := h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
	assert.Equal(t, "failed", frames[0].Booking.Status)
	assert.Equal(t, "Jane", frames[0].Booking.Name, "draft survives a failed delivery")

	frames = h.handle(ctx, sess, InboundMessage{Type: "booking_retry"})
	assert.Equal(t, "confirming_slot", frames[0].Booking.Status)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	frames = h.handle(ctx, sess, InboundMessage{Type: "booking_confirm"})
	assert.Equal(t, "confirmed", frames[0].Booking.Status)
	assert.Len(t, sink.delivered, 1)
}

func TestHandleMessage_HTTPFallback(t *testing.T) {
	h := testHandler(t, continueLLM(), &fakeSink{})

	body := strings.NewReader(`{"type":"message","text":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/message", body)
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		SessionID string            `json:"session_id"`
		Frames    []OutboundMessage `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "Happy to help!", frameOfType(t, resp.Frames, "message").Text)
}

func TestHandleMessage_RejectsEmptyText(t *testing.T) {
	h := testHandler(t, continueLLM(), &fakeSink{})

	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(`{"type":"message","text":"  "}`))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCalendar(t *testing.T) {
	h := testHandler(t, continueLLM(), &fakeSink{})

	req := httptest.NewRequest(http.MethodGet, "/chat/calendar", nil)
	rec := httptest.NewRecorder()
	h.HandleCalendar(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Days []availability.Day `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Days, 7)
	assert.True(t, resp.Days[0].IsToday)
	assert.False(t, resp.Days[1].Available, "sunday has no derived slots")
}

func TestSessionStore(t *testing.T) {
	logger := logging.New("error")
	store := NewSessionStore(func(string) *booking.Machine {
		return booking.NewMachine(&fakeSink{}, nil, logger)
	})

	first := store.Get("")
	assert.NotEmpty(t, first.ID)
	assert.Same(t, first, store.Get(first.ID), "same id returns the same session")
	assert.NotSame(t, first, store.Get(""), "empty id always makes a new session")
	assert.Equal(t, 2, store.Len())

	machine := first.Booking
	store.ResetBooking(first)
	assert.NotSame(t, machine, first.Booking)
}

func TestSessionStore_Sweep(t *testing.T) {
	logger := logging.New("error")
	store := NewSessionStore(func(string) *booking.Machine {
		return booking.NewMachine(&fakeSink{}, nil, logger)
	})

	now := time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	store.Get("stale")

	store.now = func() time.Time { return now.Add(sessionIdleTTL + time.Hour) }
	store.Get("fresh")

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}
