// Command llmtest exercises the configured LLM providers against a short
// studio conversation. Useful for verifying API keys before a deploy.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/tdcoflosgatos/studio-assistant/internal/conversation"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages := []conversation.ChatMessage{
		{Role: conversation.ChatRoleUser, Content: "Hi, my daughter is 6 and wants to try dance. What do you offer?"},
		{Role: conversation.ChatRoleAssistant, Content: "We'd love to have her! For age 6 we offer Ballet, Jazz, and Hip Hop classes. Does she have a style in mind, or a day of the week that works best?"},
		{Role: conversation.ChatRoleUser, Content: "She loves ballet. Do you have anything on Saturdays?"},
	}

	req := conversation.LLMRequest{
		System: []string{
			"You are a friendly dance studio assistant for TDC of Los Gatos. Keep responses brief and helpful.",
		},
		Messages:    messages,
		MaxTokens:   200,
		Temperature: 0.7,
	}

	fmt.Println("LLM Provider Test")
	fmt.Println("-----------------")

	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		fmt.Println("\n[openrouter]")
		client, err := conversation.NewOpenRouterLLMClient(conversation.OpenRouterConfig{
			APIKey: key,
			Model:  os.Getenv("OPENROUTER_MODEL"),
		})
		if err != nil {
			log.Printf("openrouter: %v", err)
		} else {
			runOne(ctx, client, req)
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		fmt.Println("\n[gemini]")
		client, err := conversation.NewGeminiLLMClient(ctx, key, os.Getenv("GEMINI_MODEL"))
		if err != nil {
			log.Printf("gemini: %v", err)
		} else {
			runOne(ctx, client, req)
		}
	}
}

func runOne(ctx context.Context, client conversation.LLMClient, req conversation.LLMRequest) {
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	if err != nil {
		log.Printf("completion failed: %v", err)
		return
	}
	fmt.Printf("latency: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("tokens: in=%d out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	fmt.Printf("reply: %s\n", resp.Text)
}
