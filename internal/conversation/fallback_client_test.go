package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

func TestFallbackLLMClient_PrimarySucceeds(t *testing.T) {
	primary := &flakyLLM{}
	fallback := &flakyLLM{}
	client := NewFallbackLLMClient(primary, fallback, logging.New("error"))

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestFallbackLLMClient_FallsBackOnFailure(t *testing.T) {
	primary := &flakyLLM{failures: 10}
	fallback := &flakyLLM{}
	client := NewFallbackLLMClient(primary, fallback, logging.New("error"))

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackLLMClient_BothFail(t *testing.T) {
	primary := &flakyLLM{failures: 10}
	fallback := &flakyLLM{failures: 10}
	client := NewFallbackLLMClient(primary, fallback, logging.New("error"))

	_, err := client.Complete(context.Background(), LLMRequest{})
	require.Error(t, err)
}

func TestFallbackLLMClient_NoFallbackConfigured(t *testing.T) {
	primary := &flakyLLM{failures: 10}
	client := NewFallbackLLMClient(primary, nil, logging.New("error"))

	_, err := client.Complete(context.Background(), LLMRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
}
