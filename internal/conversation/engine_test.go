package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdcoflosgatos/studio-assistant/internal/classes"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

type fakeLLM struct {
	responses []LLMResponse
	err       error
	requests  []LLMRequest
}

func (f *fakeLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return LLMResponse{}, f.err
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

type fakeCatalogReader struct{ tabs map[string][][]string }

func (f *fakeCatalogReader) ReadTab(_ context.Context, tab string) ([][]string, error) {
	return f.tabs[tab], nil
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testEngine(t *testing.T, llm LLMClient) (*Engine, *redis.Client) {
	t.Helper()
	rdb := testRedis(t)
	catalog := classes.NewCatalog(
		&fakeCatalogReader{tabs: map[string][][]string{
			"Monday": {
				{"Class", "Description", "Performance", "Time", "Ages", "Instructor"},
				{"Ballet Basics", "Ballet fundamentals", "Yes", "4:00 PM", "5-7", "Ms. Sarah"},
			},
		}},
		rdb, logging.New("error"),
	)
	return NewEngine(llm, rdb, catalog, nil, nil, logging.New("error")), rdb
}

func TestRespond_ParsesModelJSON(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{
		Text: `{"message":"Ballet Basics would be perfect!","action":"continue",` +
			`"preferences":{"age":6,"style":"ballet","dayPreference":null},` +
			`"recommendedClasses":["Ballet Basics"]}`,
	}}}
	eng, _ := testEngine(t, llm)

	reply, err := eng.Respond(context.Background(), "conv-1", "My daughter is 6 and loves ballet", Preferences{})
	require.NoError(t, err)

	assert.Equal(t, "Ballet Basics would be perfect!", reply.Message)
	assert.Equal(t, ActionContinue, reply.Action)
	assert.Equal(t, 6, reply.Preferences.Age)
	assert.Equal(t, "ballet", reply.Preferences.Style)
	require.Len(t, reply.RecommendedClasses, 1)
	assert.Equal(t, "Ballet Basics", reply.RecommendedClasses[0].Name)
}

func TestRespond_MergesPreferences(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{
		Text: `{"message":"Saturdays work great.","action":"continue",` +
			`"preferences":{"age":null,"style":null,"dayPreference":"Saturday"}}`,
	}}}
	eng, _ := testEngine(t, llm)

	reply, err := eng.Respond(context.Background(), "conv-1", "Saturdays are best",
		Preferences{Age: 6, Style: "ballet"})
	require.NoError(t, err)

	assert.Equal(t, 6, reply.Preferences.Age, "existing age must survive a null update")
	assert.Equal(t, "ballet", reply.Preferences.Style)
	assert.Equal(t, "Saturday", reply.Preferences.DayPreference)
}

func TestRespond_NonJSONFallsThroughAsText(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{Text: "Sure, we have lots of ballet classes!"}}}
	eng, _ := testEngine(t, llm)

	reply, err := eng.Respond(context.Background(), "conv-1", "Do you have ballet?", Preferences{})
	require.NoError(t, err)

	assert.Equal(t, "Sure, we have lots of ballet classes!", reply.Message)
	assert.Equal(t, ActionContinue, reply.Action)
	assert.Empty(t, reply.RecommendedClasses)
}

func TestRespond_StripsMarkdownFences(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{
		Text: "```json\n{\"message\":\"Hi there!\",\"action\":\"continue\",\"preferences\":{}}\n```",
	}}}
	eng, _ := testEngine(t, llm)

	reply, err := eng.Respond(context.Background(), "conv-1", "hi", Preferences{})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", reply.Message)
}

func TestRespond_LLMFailureOffersCallback(t *testing.T) {
	llm := &fakeLLM{err: errors.New("upstream down")}
	eng, _ := testEngine(t, llm)

	reply, err := eng.Respond(context.Background(), "conv-1", "hello?", Preferences{Age: 6})
	require.NoError(t, err, "model failures must not error the chat turn")

	assert.Equal(t, ActionScheduleCall, reply.Action)
	assert.NotEmpty(t, reply.Message)
	assert.Equal(t, 6, reply.Preferences.Age, "preferences survive the fallback")
}

func TestRespond_PersistsAndWindowsHistory(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{
		Text: `{"message":"Noted.","action":"continue","preferences":{}}`,
	}}}
	eng, _ := testEngine(t, llm)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := eng.Respond(ctx, "conv-1", "another question", Preferences{})
		require.NoError(t, err)
	}

	history, err := eng.History(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, history, 16, "each turn stores user and assistant messages")

	// 16 stored messages, but the next request must only carry the last 10
	// plus the new user message.
	_, err = eng.Respond(ctx, "conv-1", "one more", Preferences{})
	require.NoError(t, err)
	last := llm.requests[len(llm.requests)-1]
	assert.Len(t, last.Messages, historyWindow+1)
	assert.Equal(t, "one more", last.Messages[len(last.Messages)-1].Content)
}

func TestRespond_SchedulesCallAction(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{
		Text: `{"message":"Great, let's set that up!","action":"schedule_call","preferences":{"age":6}}`,
	}}}
	eng, _ := testEngine(t, llm)

	reply, err := eng.Respond(context.Background(), "conv-1", "yes please", Preferences{})
	require.NoError(t, err)
	assert.Equal(t, ActionScheduleCall, reply.Action)
}

func TestRespond_CapsRecommendations(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{
		Text: `{"message":"So many options!","action":"continue","preferences":{},` +
			`"recommendedClasses":["Tiny Dancers","Ballet Basics","Hip Hop Kids","Advanced Contemporary"]}`,
	}}}
	rdb := testRedis(t)
	catalog := classes.NewCatalog(&fakeCatalogReader{}, rdb, logging.New("error"))
	eng := NewEngine(llm, rdb, catalog, nil, nil, logging.New("error"))

	// Empty reader means the sample catalog backs the lookup.
	reply, err := eng.Respond(context.Background(), "conv-1", "what do you have?", Preferences{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(reply.RecommendedClasses), maxRecommendations)
}

func TestRespond_RecommendsFromPreferencesWhenModelSilent(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{
		Text: `{"message":"Let me find something for her.","action":"continue",` +
			`"preferences":{"age":6,"style":"ballet"}}`,
	}}}
	eng, _ := testEngine(t, llm)

	reply, err := eng.Respond(context.Background(), "conv-1", "She is 6 and loves ballet", Preferences{})
	require.NoError(t, err)

	require.NotEmpty(t, reply.RecommendedClasses, "known age and style should match the catalog even without model picks")
	assert.Equal(t, "Ballet Basics", reply.RecommendedClasses[0].Name)
	assert.LessOrEqual(t, len(reply.RecommendedClasses), maxRecommendations)
}

func TestPreferencesMerge(t *testing.T) {
	base := Preferences{Age: 6, Style: "ballet"}

	merged := base.Merge(Preferences{DayPreference: "Saturday"})
	assert.Equal(t, Preferences{Age: 6, Style: "ballet", DayPreference: "Saturday"}, merged)

	overridden := base.Merge(Preferences{Age: 7, Style: "hip hop"})
	assert.Equal(t, 7, overridden.Age)
	assert.Equal(t, "hip hop", overridden.Style)

	assert.Equal(t, base, base.Merge(Preferences{}))
}

func TestSummaryRendersTranscript(t *testing.T) {
	llm := &fakeLLM{responses: []LLMResponse{{
		Text: `{"message":"We have ballet on Mondays.","action":"continue","preferences":{}}`,
	}}}
	eng, _ := testEngine(t, llm)
	ctx := context.Background()

	_, err := eng.Respond(ctx, "conv-1", "Do you have ballet?", Preferences{})
	require.NoError(t, err)

	summary := eng.Summary(ctx, "conv-1")
	assert.Contains(t, summary, "Customer: Do you have ballet?")
	assert.Contains(t, summary, "Assistant: We have ballet on Mondays.")

	assert.Equal(t, "No conversation history available", eng.Summary(ctx, "never-seen"))
}
