package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tdcoflosgatos/studio-assistant/internal/classes"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

// AvailabilityReloader refreshes the booking calendar from the sheet.
type AvailabilityReloader interface {
	Reload(ctx context.Context) (usedSample bool, err error)
}

// Handler serves the studio owner's dashboard API: conversation review over
// the durable postgres log, plus manual reloads of the sheet-backed data.
type Handler struct {
	db           *sql.DB
	availability AvailabilityReloader
	catalog      *classes.Catalog
	logger       *logging.Logger
}

// NewHandler creates the admin handler.
func NewHandler(db *sql.DB, availability AvailabilityReloader, catalog *classes.Catalog, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		db:           db,
		availability: availability,
		catalog:      catalog,
		logger:       logger.Component("admin"),
	}
}

// ConversationListItem represents a conversation in list responses.
type ConversationListItem struct {
	ID            string  `json:"id"`
	Channel       string  `json:"channel"`
	Status        string  `json:"status"`
	MessageCount  int     `json:"message_count"`
	StartedAt     string  `json:"started_at"`
	LastMessageAt *string `json:"last_message_at,omitempty"`
}

// ConversationsListResponse is a paginated list of conversations.
type ConversationsListResponse struct {
	Conversations []ConversationListItem `json:"conversations"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
	TotalPages    int                    `json:"total_pages"`
}

// MessageResponse represents one message in a conversation.
type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ConversationDetailResponse is one conversation with its transcript.
type ConversationDetailResponse struct {
	ID            string            `json:"id"`
	Channel       string            `json:"channel"`
	Status        string            `json:"status"`
	StartedAt     string            `json:"started_at"`
	LastMessageAt *string           `json:"last_message_at,omitempty"`
	Messages      []MessageResponse `json:"messages"`
}

// ListConversations returns a paginated conversation list.
// GET /admin/conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	status := r.URL.Query().Get("status")
	offset := (page - 1) * pageSize

	query := `
		SELECT c.id, c.channel, c.status,
		       (SELECT COUNT(*) FROM conversation_messages m WHERE m.conversation_id = c.id),
		       c.started_at, c.last_message_at
		FROM conversations c
	`
	countQuery := "SELECT COUNT(*) FROM conversations c"
	args := []any{}
	if status != "" {
		query += " WHERE c.status = $1"
		countQuery += " WHERE c.status = $1"
		args = append(args, status)
	}

	var total int
	if err := h.db.QueryRowContext(r.Context(), countQuery, args...).Scan(&total); err != nil {
		h.logger.Error("failed to count conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	query += " ORDER BY COALESCE(c.last_message_at, c.started_at) DESC"
	query += " LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, pageSize, offset)

	rows, err := h.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("failed to query conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	conversations := []ConversationListItem{}
	for rows.Next() {
		var conv ConversationListItem
		var startedAt time.Time
		var lastMessageAt sql.NullTime

		if err := rows.Scan(&conv.ID, &conv.Channel, &conv.Status, &conv.MessageCount, &startedAt, &lastMessageAt); err != nil {
			h.logger.Error("failed to scan conversation", "error", err)
			continue
		}
		conv.StartedAt = startedAt.Format(time.RFC3339)
		if lastMessageAt.Valid {
			formatted := lastMessageAt.Time.Format(time.RFC3339)
			conv.LastMessageAt = &formatted
		}
		conversations = append(conversations, conv)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ConversationsListResponse{
		Conversations: conversations,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    (total + pageSize - 1) / pageSize,
	})
}

// GetConversation returns one conversation with its full transcript.
// GET /admin/conversations/{conversationID}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		http.Error(w, "missing conversationID", http.StatusBadRequest)
		return
	}

	conv := ConversationDetailResponse{ID: conversationID, Messages: []MessageResponse{}}

	var startedAt time.Time
	var lastMessageAt sql.NullTime
	err := h.db.QueryRowContext(r.Context(), `
		SELECT channel, status, started_at, last_message_at
		FROM conversations WHERE id = $1
	`, conversationID).Scan(&conv.Channel, &conv.Status, &startedAt, &lastMessageAt)
	if err == sql.ErrNoRows {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conv.StartedAt = startedAt.Format(time.RFC3339)
	if lastMessageAt.Valid {
		formatted := lastMessageAt.Time.Format(time.RFC3339)
		conv.LastMessageAt = &formatted
	}

	messages, err := h.loadMessages(r, conversationID)
	if err != nil {
		h.logger.Error("failed to load messages", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	conv.Messages = messages

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(conv)
}

func (h *Handler) loadMessages(r *http.Request, conversationID string) ([]MessageResponse, error) {
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, role, content, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []MessageResponse{}
	for rows.Next() {
		var msg MessageResponse
		var createdAt time.Time
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &createdAt); err != nil {
			continue
		}
		msg.Timestamp = createdAt.Format(time.RFC3339)
		messages = append(messages, msg)
	}
	return messages, nil
}

// StatsResponse contains aggregated conversation statistics.
type StatsResponse struct {
	TotalConversations int            `json:"total_conversations"`
	TotalMessages      int            `json:"total_messages"`
	ByStatus           map[string]int `json:"by_status"`
	TodayCount         int            `json:"today_count"`
	WeekCount          int            `json:"week_count"`
}

// GetStats returns aggregate counts for the dashboard header.
// GET /admin/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := StatsResponse{ByStatus: make(map[string]int)}

	now := time.Now()
	today := now.Truncate(24 * time.Hour)
	weekAgo := now.AddDate(0, 0, -7)

	ctx := r.Context()
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&stats.TotalConversations)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_messages`).Scan(&stats.TotalMessages)

	rows, err := h.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM conversations GROUP BY status`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var status string
			var count int
			if rows.Scan(&status, &count) == nil {
				stats.ByStatus[status] = count
			}
		}
	}

	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE started_at >= $1`, today).Scan(&stats.TodayCount)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE started_at >= $1`, weekAgo).Scan(&stats.WeekCount)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// ExportTranscript exports a conversation transcript as plain text.
// GET /admin/conversations/{conversationID}/export
func (h *Handler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		http.Error(w, "missing conversationID", http.StatusBadRequest)
		return
	}

	messages, err := h.loadMessages(r, conversationID)
	if err != nil {
		h.logger.Error("failed to load messages for export", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	transcript := "Conversation Transcript\n"
	transcript += "========================\n\n"
	transcript += "Conversation ID: " + conversationID + "\n\n"
	transcript += "--- Messages ---\n\n"

	for _, msg := range messages {
		roleLabel := msg.Role
		switch roleLabel {
		case "assistant":
			roleLabel = "AI"
		case "user":
			roleLabel = "Customer"
		}
		timestamp, _ := time.Parse(time.RFC3339, msg.Timestamp)
		transcript += "[" + timestamp.Format("2006-01-02 15:04:05") + "] " + roleLabel + ":\n"
		transcript += msg.Content + "\n\n"
	}
	if len(messages) == 0 {
		transcript += "(No messages found)\n"
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Disposition", "attachment; filename=transcript-"+conversationID+".txt")
	_, _ = w.Write([]byte(transcript))
}

// ReloadAvailability refetches the owner's availability sheet and rebuilds
// the booking calendar.
// POST /admin/availability/reload
func (h *Handler) ReloadAvailability(w http.ResponseWriter, r *http.Request) {
	if h.availability == nil {
		http.Error(w, "availability reload not configured", http.StatusServiceUnavailable)
		return
	}

	usedSample, err := h.availability.Reload(r.Context())
	resp := map[string]any{"used_sample": usedSample}
	if err != nil {
		resp["error"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if usedSample {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// ReloadClasses drops the class catalog cache and refetches the schedule.
// POST /admin/classes/reload
func (h *Handler) ReloadClasses(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		http.Error(w, "class reload not configured", http.StatusServiceUnavailable)
		return
	}

	list, err := h.catalog.Reload(r.Context())
	resp := map[string]any{"classes": len(list)}
	if err != nil {
		resp["error"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
