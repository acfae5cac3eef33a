package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tdcoflosgatos/studio-assistant/internal/admin"
	httpmiddleware "github.com/tdcoflosgatos/studio-assistant/internal/http/middleware"
	"github.com/tdcoflosgatos/studio-assistant/internal/webchat"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Chat               *webchat.Handler
	Admin              *admin.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	ChatRatePerSecond  float64
	ChatRateBurst      int
}

// New creates a Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Chat != nil {
		r.Route("/chat", func(chat chi.Router) {
			if cfg.ChatRatePerSecond > 0 {
				chat.Use(httpmiddleware.RateLimit(cfg.ChatRatePerSecond, cfg.ChatRateBurst))
			}
			chat.Get("/ws", cfg.Chat.HandleWebSocket)
			chat.Post("/message", cfg.Chat.HandleMessage)
			chat.Get("/history", cfg.Chat.HandleHistory)
			chat.Get("/calendar", cfg.Chat.HandleCalendar)
			chat.Get("/widget.js", cfg.Chat.HandleWidgetJS)
		})
	}

	if cfg.Admin != nil {
		r.Route("/admin", func(adm chi.Router) {
			if cfg.AdminAuthSecret != "" {
				adm.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			}
			adm.Get("/conversations", cfg.Admin.ListConversations)
			adm.Get("/conversations/{conversationID}", cfg.Admin.GetConversation)
			adm.Get("/conversations/{conversationID}/export", cfg.Admin.ExportTranscript)
			adm.Get("/stats", cfg.Admin.GetStats)
			adm.Post("/availability/reload", cfg.Admin.ReloadAvailability)
			adm.Post("/classes/reload", cfg.Admin.ReloadClasses)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
