package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Session lifecycle event names published to the message broker.
const (
	EventSessionStarted   = "started"
	EventSessionSubmitted = "submitted"
	EventSessionExpired   = "expired"
)

// SessionEvent is the payload broadcast on session lifecycle transitions.
type SessionEvent struct {
	Event      string    `json:"event"`
	SessionID  uint      `json:"session_id"`
	UserID     uint      `json:"user_id"`
	Level      string    `json:"level"`
	Category   string    `json:"category"`
	Status     string    `json:"status"`
	TotalScore float64   `json:"total_score"`
	SentAt     time.Time `json:"sent_at"`
}

// SessionEventPublisher broadcasts session lifecycle events.
type SessionEventPublisher interface {
	Publish(event SessionEvent)
}

type natsSessionEvents struct {
	conn        *nats.Conn
	subjectBase string
	logger      zerolog.Logger
}

// NewSessionEventPublisher constructs a NATS-backed publisher. A nil
// connection disables publishing, which keeps the engine usable without a
// broker (tests, local development).
func NewSessionEventPublisher(conn *nats.Conn, subjectBase string, logger zerolog.Logger) SessionEventPublisher {
	if subjectBase == "" {
		subjectBase = "codequest.sessions"
	}

	return &natsSessionEvents{
		conn:        conn,
		subjectBase: strings.TrimSuffix(subjectBase, "."),
		logger:      logger.With().Str("component", "session_events").Logger(),
	}
}

func (p *natsSessionEvents) Publish(event SessionEvent) {
	if p.conn == nil {
		return
	}

	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to encode session event")
		return
	}

	subject := p.subjectBase + "." + event.Event
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish session event")
	}
}
