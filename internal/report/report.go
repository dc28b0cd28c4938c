// Package report hands finished session summaries to the ratings
// aggregation layer.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/studyq/internal/domain"
	"github.com/nats-io/nats.go"
)

// Sink receives every persisted session summary.
type Sink interface {
	Publish(ctx context.Context, s domain.SessionSummary) error
}

// Publisher is the part of *nats.Conn the NATS sink uses.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes summaries as JSON on a NATS subject.
type NATSSink struct {
	pub     Publisher
	subject string
}

// NewNATSSink returns a sink publishing on subject.
func NewNATSSink(pub Publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject}
}

// Connect dials the NATS server at url.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

func (s *NATSSink) Publish(ctx context.Context, summary domain.SessionSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode session summary: %w", err)
	}

	msg := nats.NewMsg(s.subject)
	msg.Data = data
	msg.Header.Set("Summary-Kind", string(summary.Kind()))
	msg.Header.Set("Study-Mode", string(summary.StudyMode))
	msg.Header.Set("Deck-Id", summary.DeckID)

	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish session summary: %w", err)
	}
	return nil
}

// LogSink writes summaries to a logger. It is used when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(_ context.Context, summary domain.SessionSummary) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("session completed",
		"user_id", summary.UserID,
		"deck_id", summary.DeckID,
		"study_mode", summary.StudyMode,
		"kind", summary.Kind(),
		"cards_studied", summary.CardsStudied,
		"total_cards", summary.TotalCards,
		"duration_ms", summary.TotalDurationMs,
	)
	return nil
}
