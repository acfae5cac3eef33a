package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"embed"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tdcoflosgatos/studio-assistant/cmd/mainconfig"
	"github.com/tdcoflosgatos/studio-assistant/internal/admin"
	"github.com/tdcoflosgatos/studio-assistant/internal/api/router"
	"github.com/tdcoflosgatos/studio-assistant/internal/availability"
	"github.com/tdcoflosgatos/studio-assistant/internal/booking"
	"github.com/tdcoflosgatos/studio-assistant/internal/classes"
	appconfig "github.com/tdcoflosgatos/studio-assistant/internal/config"
	"github.com/tdcoflosgatos/studio-assistant/internal/conversation"
	"github.com/tdcoflosgatos/studio-assistant/internal/notify"
	"github.com/tdcoflosgatos/studio-assistant/internal/observability/metrics"
	"github.com/tdcoflosgatos/studio-assistant/internal/sheets"
	"github.com/tdcoflosgatos/studio-assistant/internal/webchat"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

//go:embed widget.js
var widgetFS embed.FS

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting studio-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Redis backs the conversation history and the class catalog cache.
	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup", "error", err)
	}

	// The studio sheet is optional; without it everything runs on samples.
	var reader sheets.TabReader
	if cfg.SheetsAPIKey != "" && cfg.SheetsSpreadsheetID != "" {
		client, err := sheets.New(ctx, cfg.SheetsAPIKey, cfg.SheetsSpreadsheetID, logger)
		if err != nil {
			logger.Error("failed to create sheets client", "error", err)
			os.Exit(1)
		}
		reader = client
	} else {
		logger.Warn("sheets not configured, using sample data")
	}

	loader := availability.NewLoader(reader, cfg.AvailabilityTab, logger)
	if usedSample, err := loader.Reload(ctx); usedSample {
		logger.Warn("availability loaded from samples", "error", err)
	}

	catalog := classes.NewCatalog(reader, rdb, logger)

	// Durable conversation log for the admin dashboard.
	var logStore *conversation.LogStore
	var adminDB *sql.DB
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logStore = conversation.NewLogStore(pool)

		adminDB, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open admin db", "error", err)
			os.Exit(1)
		}
		defer func() { _ = adminDB.Close() }()
	} else {
		logger.Warn("DATABASE_URL not set, conversation log and admin dashboard disabled")
	}

	llm, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create LLM client", "error", err)
		os.Exit(1)
	}

	convMetrics := metrics.NewConversationMetrics(prometheus.DefaultRegisterer)
	bookMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	engine := conversation.NewEngine(llm, rdb, catalog, logStore, convMetrics, logger)

	sender := buildEmailSender(ctx, cfg, logger)
	sink := notify.NewService(sender, notify.Config{
		AdminEmail: cfg.AdminEmail,
		AdminName:  cfg.AdminName,
	}, bookMetrics, logger)

	sessions := webchat.NewSessionStore(func(conversationID string) *booking.Machine {
		return booking.NewMachine(sink, func(ctx context.Context) string {
			return engine.Summary(ctx, conversationID)
		}, logger)
	})

	widgetJS, err := widgetFS.ReadFile("widget.js")
	if err != nil {
		logger.Error("failed to read embedded widget", "error", err)
		os.Exit(1)
	}

	chatHandler := webchat.NewHandler(engine, loader.Calendar(), sessions, cfg.BookingWindowDays, widgetJS, logger)

	var adminHandler *admin.Handler
	if adminDB != nil {
		adminHandler = admin.NewHandler(adminDB, loader, catalog, logger)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Chat:               chatHandler,
		Admin:              adminHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRatePerSecond:  cfg.ChatRatePerSecond,
		ChatRateBurst:      cfg.ChatRateBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Drop idle chat sessions in the background.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if removed := sessions.Sweep(); removed > 0 {
					logger.Info("swept idle chat sessions", "removed", removed)
				}
			}
		}
	}()

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildLLMClient selects the configured provider, layers in the fallback
// provider when one is configured, and wraps the result with retries.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	inner, err := buildLLMProvider(ctx, cfg, cfg.LLMProvider)
	if err != nil {
		return nil, err
	}

	if cfg.LLMFallbackProvider != "" && cfg.LLMFallbackProvider != cfg.LLMProvider {
		fallback, err := buildLLMProvider(ctx, cfg, cfg.LLMFallbackProvider)
		if err != nil {
			logger.Warn("fallback LLM provider unavailable",
				"provider", cfg.LLMFallbackProvider,
				"error", err,
			)
		} else {
			inner = conversation.NewFallbackLLMClient(inner, fallback, logger)
		}
	}

	return conversation.NewRetryLLMClient(inner, cfg.LLMMaxRetries, cfg.LLMRetryBaseDelay, logger), nil
}

func buildLLMProvider(ctx context.Context, cfg *appconfig.Config, provider string) (conversation.LLMClient, error) {
	switch provider {
	case "gemini":
		return conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "bedrock":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	default:
		return conversation.NewOpenRouterLLMClient(conversation.OpenRouterConfig{
			BaseURL: cfg.OpenRouterBaseURL,
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.OpenRouterModel,
			Referer: cfg.OpenRouterReferer,
			Title:   cfg.OpenRouterTitle,
		})
	}
}

// buildEmailSender selects the configured email provider, falling back to the
// logging stub so a missing key never blocks local development.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config for SES, using stub sender", "error", err)
			break
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
	case "stub":
	default:
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid not configured, using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}
