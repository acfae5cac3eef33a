package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/tdcoflosgatos/studio-assistant/internal/booking"
	"github.com/tdcoflosgatos/studio-assistant/internal/observability/metrics"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

// Service emails booking requests to the studio. It is the notification sink
// behind the booking state machine: Deliver must succeed for a booking to
// confirm, DeliverSummary is a best-effort courtesy copy to the guest.
type Service struct {
	email      EmailSender
	adminEmail string
	adminName  string
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
}

// Config holds the notification targets.
type Config struct {
	AdminEmail string
	AdminName  string
}

// NewService creates the booking notification service.
func NewService(email EmailSender, cfg Config, m *metrics.BookingMetrics, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if cfg.AdminEmail == "" {
		panic("notify: admin email cannot be empty")
	}
	if cfg.AdminName == "" {
		cfg.AdminName = "Studio Owner"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		adminEmail: cfg.AdminEmail,
		adminName:  cfg.AdminName,
		metrics:    m,
		logger:     logger.Component("notify"),
	}
}

var _ booking.Sink = (*Service)(nil)

// Deliver emails the consultation call request to the studio owner. An error
// here keeps the booking unconfirmed so the caller can retry.
func (s *Service) Deliver(ctx context.Context, sub booking.Submission) error {
	msg := EmailMessage{
		To:      s.adminEmail,
		ToName:  s.adminName,
		Subject: fmt.Sprintf("New Dance Studio Consultation Call - %s", sub.Name),
		Body:    formatCallRequest(sub),
	}

	if err := s.email.Send(ctx, msg); err != nil {
		s.metrics.ObserveDelivery("failure")
		return fmt.Errorf("notify: booking delivery failed: %w", err)
	}
	s.metrics.ObserveDelivery("success")
	s.logger.Info("booking request delivered",
		"name", sub.Name, "date", sub.Date, "time", sub.SlotLabel)
	return nil
}

// DeliverSummary sends the guest a confirmation of their callback slot.
// Failures are logged and swallowed; the booking already succeeded.
func (s *Service) DeliverSummary(ctx context.Context, sub booking.Submission) {
	if strings.TrimSpace(sub.Email) == "" {
		return
	}

	msg := EmailMessage{
		To:      sub.Email,
		ToName:  sub.Name,
		Subject: "Your callback with TDC of Los Gatos is scheduled",
		Body:    formatGuestConfirmation(sub),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Warn("guest confirmation failed", "to", sub.Email, "error", err)
	}
}

func formatCallRequest(sub booking.Submission) string {
	var b strings.Builder
	b.WriteString("New Dance Studio Consultation Call\n\n")
	b.WriteString("CALL DETAILS\n")
	fmt.Fprintf(&b, "Name: %s\n", sub.Name)
	fmt.Fprintf(&b, "Email: %s\n", sub.Email)
	fmt.Fprintf(&b, "Phone: %s\n", sub.Phone)
	fmt.Fprintf(&b, "Date: %s\n", sub.Date)
	fmt.Fprintf(&b, "Time: %s\n", sub.SlotLabel)
	fmt.Fprintf(&b, "Submitted: %s\n", sub.Timestamp)
	b.WriteString("\nFULL CONVERSATION\n")
	summary := sub.ConversationSummary
	if strings.TrimSpace(summary) == "" {
		summary = "No conversation history available"
	}
	b.WriteString(summary)
	b.WriteString("\n")
	return b.String()
}

func formatGuestConfirmation(sub booking.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", sub.Name)
	fmt.Fprintf(&b, "Your callback with our studio owner is set for %s at %s.\n\n", sub.Date, sub.SlotLabel)
	b.WriteString("If you need to reschedule, just reply to this email or call us at (408) 204-6849.\n\n")
	b.WriteString("See you soon,\nTDC of Los Gatos\n540 N Santa Cruz Ave, Los Gatos, CA 95030\n")
	return b.String()
}
