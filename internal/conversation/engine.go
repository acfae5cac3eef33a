package conversation

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tdcoflosgatos/studio-assistant/internal/classes"
	"github.com/tdcoflosgatos/studio-assistant/internal/observability/metrics"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

// Action tells the chat surface what to do after showing the reply.
type Action string

const (
	// ActionContinue keeps the conversation going.
	ActionContinue Action = "continue"
	// ActionScheduleCall opens the booking flow for a callback.
	ActionScheduleCall Action = "schedule_call"
)

// historyWindow caps how many prior messages are sent to the model.
const historyWindow = 10

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2048
)

// fallbackMessage is returned when the model is unreachable after retries.
const fallbackMessage = "I'm having a little trouble connecting right now. " +
	"Let me set up a quick call with our studio owner instead, so you can get " +
	"answers directly. Would you like to schedule a callback?"

// Preferences tracks what we have learned about the family so far. The model
// returns them with each reply; non-empty values overwrite stored ones.
type Preferences struct {
	Age           int    `json:"age,omitempty"`
	Style         string `json:"style,omitempty"`
	DayPreference string `json:"dayPreference,omitempty"`
}

// AgeString renders the age for prompts, empty when unknown.
func (p Preferences) AgeString() string {
	if p.Age <= 0 {
		return ""
	}
	return strconv.Itoa(p.Age)
}

// Merge overlays newer preferences onto p, keeping existing values where the
// update is empty.
func (p Preferences) Merge(update Preferences) Preferences {
	if update.Age > 0 {
		p.Age = update.Age
	}
	if strings.TrimSpace(update.Style) != "" {
		p.Style = update.Style
	}
	if strings.TrimSpace(update.DayPreference) != "" {
		p.DayPreference = update.DayPreference
	}
	return p
}

// Reply is one assistant turn, ready for the chat surface.
type Reply struct {
	Message            string          `json:"message"`
	Action             Action          `json:"action"`
	Preferences        Preferences     `json:"preferences"`
	RecommendedClasses []classes.Class `json:"recommendedClasses,omitempty"`
}

// modelReply is the JSON shape the model is instructed to return. Preference
// fields are pointers because the model sends null for unknowns.
type modelReply struct {
	Message     string `json:"message"`
	Action      string `json:"action"`
	Preferences struct {
		Age           *int    `json:"age"`
		Style         *string `json:"style"`
		DayPreference *string `json:"dayPreference"`
	} `json:"preferences"`
	RecommendedClasses []string `json:"recommendedClasses"`
}

// maxRecommendations caps how many catalog entries a single reply carries.
const maxRecommendations = 3

// Engine runs the concierge conversation: it assembles the prompt from the
// class catalog and stored preferences, calls the model, and persists both the
// rolling redis history and the durable postgres log.
type Engine struct {
	llm     LLMClient
	history *historyStore
	catalog *classes.Catalog
	logs    *LogStore
	metrics *metrics.ConversationMetrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewEngine wires the conversation engine. logs and metrics may be nil; the
// engine then skips durable logging and instrumentation.
func NewEngine(llm LLMClient, rdb *redis.Client, catalog *classes.Catalog, logs *LogStore, m *metrics.ConversationMetrics, logger *logging.Logger) *Engine {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if catalog == nil {
		panic("conversation: catalog cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	tracer := otel.Tracer("studio.internal.conversation")
	return &Engine{
		llm:     llm,
		history: newHistoryStore(rdb, tracer),
		catalog: catalog,
		logs:    logs,
		metrics: m,
		logger:  logger.Component("conversation"),
		tracer:  tracer,
	}
}

// Respond handles one user message and returns the assistant's reply. The
// stored preferences are merged with whatever the model extracted this turn
// and echoed back so the caller can keep its session state current.
func (e *Engine) Respond(ctx context.Context, conversationID, userMessage string, prefs Preferences) (Reply, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.respond")
	defer span.End()

	history, err := e.history.Load(ctx, conversationID)
	if err != nil {
		e.logger.Warn("failed to load history, starting fresh",
			"conversation_id", conversationID, "error", err)
		history = nil
	}

	catalog, usedSample, err := e.catalog.All(ctx)
	if err != nil {
		e.logger.Warn("class catalog unavailable", "error", err)
	}
	if usedSample {
		e.logger.Debug("prompting with sample catalog", "conversation_id", conversationID)
	}

	messages := make([]ChatMessage, 0, historyWindow+1)
	if len(history) > historyWindow {
		messages = append(messages, history[len(history)-historyWindow:]...)
	} else {
		messages = append(messages, history...)
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: userMessage})

	req := LLMRequest{
		System:      []string{buildSystemPrompt(catalog, prefs)},
		Messages:    messages,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		JSONOutput:  true,
	}

	start := time.Now()
	resp, err := e.llm.Complete(ctx, req)
	if err != nil {
		e.metrics.ObserveLLMLatency("error", time.Since(start).Seconds())
		e.metrics.ObserveLLMFailure()
		span.RecordError(err)
		e.logger.Error("llm completion failed", "conversation_id", conversationID, "error", err)

		reply := Reply{Message: fallbackMessage, Action: ActionScheduleCall, Preferences: prefs}
		e.persistTurn(ctx, conversationID, history, userMessage, reply)
		return reply, nil
	}
	e.metrics.ObserveLLMLatency("ok", time.Since(start).Seconds())

	reply := e.parseReply(resp.Text, prefs, catalog)
	e.metrics.ObserveMessage(string(reply.Action))
	e.persistTurn(ctx, conversationID, history, userMessage, reply)

	if reply.Action == ActionScheduleCall && e.logs != nil {
		if err := e.logs.SetStatus(ctx, conversationID, LogStatusBookingRequested); err != nil {
			e.logger.Warn("failed to mark booking requested", "conversation_id", conversationID, "error", err)
		}
	}
	return reply, nil
}

// Summary renders the conversation transcript for the booking notification.
func (e *Engine) Summary(ctx context.Context, conversationID string) string {
	return e.history.Summary(ctx, conversationID)
}

// History returns the stored transcript so a reconnecting client can replay it.
func (e *Engine) History(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	return e.history.Load(ctx, conversationID)
}

// MarkBooked records the booked status on the durable log.
func (e *Engine) MarkBooked(ctx context.Context, conversationID string) {
	if e.logs == nil {
		return
	}
	if err := e.logs.SetStatus(ctx, conversationID, LogStatusBooked); err != nil {
		e.logger.Warn("failed to mark conversation booked", "conversation_id", conversationID, "error", err)
	}
}

// parseReply decodes the model output. Anything that is not the expected JSON
// shape becomes a plain continue reply carrying the raw text, so a chatty
// model never breaks the conversation.
func (e *Engine) parseReply(raw string, prefs Preferences, catalog []classes.Class) Reply {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed modelReply
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || strings.TrimSpace(parsed.Message) == "" {
		e.logger.Warn("model returned non-JSON reply, passing through as text")
		return Reply{Message: strings.TrimSpace(raw), Action: ActionContinue, Preferences: prefs}
	}

	update := Preferences{}
	if parsed.Preferences.Age != nil {
		update.Age = *parsed.Preferences.Age
	}
	if parsed.Preferences.Style != nil {
		update.Style = *parsed.Preferences.Style
	}
	if parsed.Preferences.DayPreference != nil {
		update.DayPreference = *parsed.Preferences.DayPreference
	}

	reply := Reply{
		Message:     parsed.Message,
		Action:      ActionContinue,
		Preferences: prefs.Merge(update),
	}
	if Action(parsed.Action) == ActionScheduleCall {
		reply.Action = ActionScheduleCall
	}

	if len(parsed.RecommendedClasses) > 0 {
		resolved := classes.ResolveNames(catalog, parsed.RecommendedClasses)
		if len(resolved) > maxRecommendations {
			resolved = resolved[:maxRecommendations]
		}
		reply.RecommendedClasses = resolved
	} else if p := reply.Preferences; p.Age > 0 && p.Style != "" {
		// The model named no classes but we know enough to match the catalog
		// ourselves.
		matched := classes.Recommend(catalog, p.Age, p.Style, p.DayPreference)
		if len(matched) > maxRecommendations {
			matched = matched[:maxRecommendations]
		}
		reply.RecommendedClasses = matched
	}
	return reply
}

// persistTurn appends the exchange to the redis history and the postgres log.
// Persistence failures are logged but never surfaced to the user.
func (e *Engine) persistTurn(ctx context.Context, conversationID string, history []ChatMessage, userMessage string, reply Reply) {
	history = append(history,
		ChatMessage{Role: ChatRoleUser, Content: userMessage},
		ChatMessage{Role: ChatRoleAssistant, Content: reply.Message},
	)
	if err := e.history.Save(ctx, conversationID, history); err != nil {
		e.logger.Warn("failed to save history", "conversation_id", conversationID, "error", err)
	}

	if e.logs == nil {
		return
	}
	if err := e.logs.RecordMessage(ctx, conversationID, ChatRoleUser, userMessage); err != nil {
		e.logger.Warn("failed to log user message", "conversation_id", conversationID, "error", err)
	}
	if err := e.logs.RecordMessage(ctx, conversationID, ChatRoleAssistant, reply.Message); err != nil {
		e.logger.Warn("failed to log assistant message", "conversation_id", conversationID, "error", err)
	}
}
