package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/tdcoflosgatos/studio-assistant/internal/availability"
	"github.com/tdcoflosgatos/studio-assistant/internal/booking"
	"github.com/tdcoflosgatos/studio-assistant/internal/conversation"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

// InboundMessage is what the chat widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // message, ping, booking_*
	SessionID string `json:"session_id"`
	Text      string `json:"text,omitempty"`

	// booking_contact
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	// booking_select
	Date string `json:"date,omitempty"` // YYYY-MM-DD
	Time string `json:"time,omitempty"` // HH:MM, 24h
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type               string             `json:"type"` // message, typing, pong, session, history, booking_state, calendar, error
	Text               string             `json:"text,omitempty"`
	Role               string             `json:"role,omitempty"`
	SessionID          string             `json:"session_id,omitempty"`
	Action             string             `json:"action,omitempty"`
	RecommendedClasses []string           `json:"recommended_classes,omitempty"`
	Messages           []HistoryMessage   `json:"messages,omitempty"`
	Booking            *BookingState      `json:"booking,omitempty"`
	Calendar           []availability.Day `json:"calendar,omitempty"`
	Field              string             `json:"field,omitempty"` // which contact field failed
}

// HistoryMessage is a simplified message for history replays.
type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// BookingState mirrors the visitor's draft for the widget.
type BookingState struct {
	Status string `json:"status"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Date   string `json:"date,omitempty"`
	Time   string `json:"time,omitempty"`
	Label  string `json:"time_label,omitempty"`
}

// Handler serves the web chat: conversational messages through the engine and
// booking commands through the session's state machine, over WebSocket with an
// HTTP fallback.
type Handler struct {
	engine     *conversation.Engine
	calendar   *availability.Calendar
	sessions   *SessionStore
	windowDays int
	widgetJS   []byte
	logger     *logging.Logger
	now        func() time.Time
}

// NewHandler creates a web chat handler.
func NewHandler(engine *conversation.Engine, calendar *availability.Calendar, sessions *SessionStore, windowDays int, widgetJS []byte, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("webchat: engine cannot be nil")
	}
	if calendar == nil {
		panic("webchat: calendar cannot be nil")
	}
	if sessions == nil {
		panic("webchat: session store cannot be nil")
	}
	if windowDays <= 0 {
		windowDays = availability.DefaultWindowDays
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:     engine,
		calendar:   calendar,
		sessions:   sessions,
		windowDays: windowDays,
		widgetJS:   widgetJS,
		logger:     logger.Component("webchat"),
		now:        time.Now,
	}
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sess := h.sessions.Get(r.URL.Query().Get("session"))

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sess.ID})

	if history, err := h.engine.History(r.Context(), sess.ID); err == nil && len(history) > 0 {
		replay := make([]HistoryMessage, 0, len(history))
		for _, m := range history {
			replay = append(replay, HistoryMessage{Role: m.Role, Text: m.Content})
		}
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: replay})
	}

	h.logger.Info("connection opened", "session_id", sess.ID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("connection closed", "session_id", sess.ID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}

		for _, out := range h.handle(r.Context(), sess, msg) {
			_ = websocket.JSON.Send(conn, out)
		}
	}
}

// handle routes one inbound message and returns the frames to send back.
func (h *Handler) handle(ctx context.Context, sess *Session, msg InboundMessage) []OutboundMessage {
	sess.Lock()
	defer sess.Unlock()

	switch msg.Type {
	case "message":
		return h.handleChat(ctx, sess, msg.Text)
	case "booking_contact":
		return h.bookingResult(sess, sess.Booking.SubmitContact(msg.Name, msg.Email, msg.Phone))
	case "booking_select":
		return h.handleSelect(sess, msg.Date, msg.Time)
	case "booking_confirm":
		return h.handleConfirm(ctx, sess)
	case "booking_change":
		return h.bookingResult(sess, sess.Booking.Change())
	case "booking_retry":
		return h.bookingResult(sess, sess.Booking.Retry())
	case "booking_cancel":
		return h.bookingResult(sess, sess.Booking.Cancel())
	default:
		return nil
	}
}

func (h *Handler) handleChat(ctx context.Context, sess *Session, text string) []OutboundMessage {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	out := []OutboundMessage{{Type: "typing"}}

	reply, err := h.engine.Respond(ctx, sess.ID, text, sess.Preferences)
	if err != nil {
		h.logger.Error("engine failed", "session_id", sess.ID, "error", err)
		return append(out, OutboundMessage{
			Type: "error",
			Text: "Sorry, something went wrong. Please try again.",
		})
	}
	sess.Preferences = reply.Preferences

	frame := OutboundMessage{
		Type:   "message",
		Role:   conversation.ChatRoleAssistant,
		Text:   reply.Message,
		Action: string(reply.Action),
	}
	for _, c := range reply.RecommendedClasses {
		frame.RecommendedClasses = append(frame.RecommendedClasses, c.Name)
	}
	out = append(out, frame)

	// Opening the booking flow also pushes the calendar so the widget can
	// render the date picker immediately.
	if reply.Action == conversation.ActionScheduleCall {
		out = append(out,
			OutboundMessage{Type: "calendar", Calendar: h.calendar.Window(h.now(), h.windowDays)},
			OutboundMessage{Type: "booking_state", Booking: bookingState(sess.Booking.Draft())},
		)
	}
	return out
}

func (h *Handler) handleSelect(sess *Session, date, timeOfDay string) []OutboundMessage {
	var slot *availability.Slot
	if timeOfDay != "" {
		if date == "" {
			date = sess.Booking.Draft().SelectedDate
		}
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return []OutboundMessage{{Type: "error", Text: "invalid date", Booking: bookingState(sess.Booking.Draft())}}
		}
		for _, s := range h.calendar.SlotsForWeekday(day.Weekday()) {
			if s.Time24 == timeOfDay {
				slot = &s
				break
			}
		}
		if slot == nil {
			return []OutboundMessage{{Type: "error", Text: "that time is not available on the selected day", Booking: bookingState(sess.Booking.Draft())}}
		}
	}
	return h.bookingResult(sess, sess.Booking.Select(date, slot))
}

func (h *Handler) handleConfirm(ctx context.Context, sess *Session) []OutboundMessage {
	err := sess.Booking.Confirm(ctx)
	out := h.bookingResult(sess, err)
	if err == nil && sess.Booking.Status() == booking.StatusConfirmed {
		h.engine.MarkBooked(ctx, sess.ID)
		// The confirmed frame above is the receipt; a fresh machine lets the
		// same session book another call later.
		h.sessions.ResetBooking(sess)
	}
	return out
}

// bookingResult renders the draft after a booking command. Validation and
// transition errors ride along with the unchanged state so the widget can
// show them inline.
func (h *Handler) bookingResult(sess *Session, err error) []OutboundMessage {
	frame := OutboundMessage{Type: "booking_state", Booking: bookingState(sess.Booking.Draft())}

	var vErr *booking.ValidationError
	var tErr *booking.TransitionError
	switch {
	case err == nil:
	case errors.As(err, &vErr):
		frame.Text = vErr.Reason
		frame.Field = vErr.Field
	case errors.As(err, &tErr):
		frame.Text = tErr.Error()
	default:
		frame.Text = "We couldn't send your booking just now. You can try again."
	}
	return []OutboundMessage{frame}
}

func bookingState(d booking.Draft) *BookingState {
	st := &BookingState{
		Status: string(d.Status),
		Name:   d.ContactName,
		Email:  d.ContactEmail,
		Phone:  d.ContactPhone,
		Date:   d.SelectedDate,
	}
	if d.SelectedSlot != nil {
		st.Time = d.SelectedSlot.Time24
		st.Label = d.SelectedSlot.Label
	}
	return st
}

// HandleMessage is the HTTP fallback for widgets that cannot hold a socket.
// It answers synchronously with the full frame list.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg.Type == "" {
		msg.Type = "message"
	}
	if msg.Type == "message" && strings.TrimSpace(msg.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Get(msg.SessionID)
	frames := h.handle(r.Context(), sess, msg)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": sess.ID,
		"frames":     frames,
	})
}

// HandleHistory returns the stored transcript for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	history, err := h.engine.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load history", "session_id", sessionID, "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	replay := make([]HistoryMessage, 0, len(history))
	for _, m := range history {
		replay = append(replay, HistoryMessage{Role: m.Role, Text: m.Content})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": replay})
}

// HandleCalendar returns the rolling booking window.
func (h *Handler) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"days": h.calendar.Window(h.now(), h.windowDays),
	})
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}
