package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const conversationTTL = 24 * time.Hour

// historyStore keeps the rolling chat history for each session in redis.
// History is working state for prompt building; the durable record for the
// admin dashboard lives in the postgres log store.
type historyStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func newHistoryStore(rdb *redis.Client, tracer trace.Tracer) *historyStore {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("studio.internal.conversation.history")
	}
	return &historyStore{redis: rdb, tracer: tracer}
}

func (s *historyStore) Save(ctx context.Context, conversationID string, history []ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_history")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conversationID), data, conversationTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

// Load returns the stored history, or an empty history for a conversation
// redis has never seen (or has expired).
func (s *historyStore) Load(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
	}
	return history, nil
}

// Summary renders the history as a human-readable transcript for the booking
// notification email.
func (s *historyStore) Summary(ctx context.Context, conversationID string) string {
	history, err := s.Load(ctx, conversationID)
	if err != nil || len(history) == 0 {
		return "No conversation history available"
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := "Assistant"
		if msg.Role == ChatRoleUser {
			role = "Customer"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return strings.Join(lines, "\n\n")
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}
