package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Conversation log statuses recorded for the admin dashboard.
const (
	LogStatusActive           = "active"
	LogStatusBookingRequested = "booking_requested"
	LogStatusBooked           = "booked"
)

// logDB is the slice of pgxpool.Pool the log store needs; pgxmock satisfies
// it in tests.
type logDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LogStore writes the durable conversation record to postgres. Unlike the
// redis history (a 24h working buffer for prompts), these rows back the admin
// dashboard and survive session expiry.
type LogStore struct {
	db     logDB
	tracer trace.Tracer
}

// NewLogStore creates a log store over a pgx pool (or a mock in tests).
func NewLogStore(db logDB) *LogStore {
	if db == nil {
		panic("conversation: log store db cannot be nil")
	}
	return &LogStore{
		db:     db,
		tracer: otel.Tracer("studio.internal.conversation.log"),
	}
}

// RecordMessage upserts the conversation row and appends one message.
func (s *LogStore) RecordMessage(ctx context.Context, conversationID, role, content string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.record_message")
	defer span.End()

	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, channel, status, started_at, last_message_at)
		VALUES ($1, 'webchat', 'active', now(), now())
		ON CONFLICT (id) DO UPDATE SET last_message_at = now()`,
		conversationID,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: upsert conversation: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.New().String(), conversationID, role, content,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: insert message: %w", err)
	}
	return nil
}

// SetStatus updates the conversation status shown on the dashboard.
func (s *LogStore) SetStatus(ctx context.Context, conversationID, status string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.set_status")
	defer span.End()

	_, err := s.db.Exec(ctx,
		`UPDATE conversations SET status = $2 WHERE id = $1`,
		conversationID, status,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: set status: %w", err)
	}
	return nil
}
