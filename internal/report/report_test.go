package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/conorfennell/studyq/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func summary() domain.SessionSummary {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.SessionSummary{
		UserID:          "u1",
		DeckID:          "d1",
		StudyMode:       domain.ModeSequential,
		CardsStudied:    3,
		TotalCards:      5,
		TotalDurationMs: 4200,
		Ratings:         map[string]int{"good": 2, "again": 1},
		StartedAt:       start,
		CompletedAt:     start.Add(time.Minute),
	}
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "studyq.sessions")

	require.NoError(t, sink.Publish(context.Background(), summary()))
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, "studyq.sessions", msg.Subject)
	assert.Equal(t, "partial", msg.Header.Get("Summary-Kind"))
	assert.Equal(t, "sequential", msg.Header.Get("Study-Mode"))
	assert.Equal(t, "d1", msg.Header.Get("Deck-Id"))

	var got domain.SessionSummary
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, summary(), got)
}

func TestNATSSinkErrors(t *testing.T) {
	boom := errors.New("no responders")
	sink := NewNATSSink(&fakePublisher{err: boom}, "s")
	assert.ErrorIs(t, sink.Publish(context.Background(), summary()), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub := &fakePublisher{}
	assert.ErrorIs(t, NewNATSSink(pub, "s").Publish(ctx, summary()), context.Canceled)
	assert.Empty(t, pub.msgs)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, sink.Publish(context.Background(), summary()))
	assert.Contains(t, buf.String(), "session completed")
	assert.Contains(t, buf.String(), "kind=partial")
}
