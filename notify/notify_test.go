package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/leave-engine/leave"
)

var approved = leave.Event{
	Type:       leave.EventApproved,
	RequestID:  "r1",
	UserID:     "u1",
	ActorID:    "admin",
	StartDate:  "2026-03-02",
	EndDate:    "2026-03-06",
	Days:       5,
	OccurredAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_PublishesKeyedJSON(t *testing.T) {
	// GIVEN: A notifier over a fake writer
	w := &fakeWriter{}
	n := newKafkaNotifier(w, "leave-events", zaptest.NewLogger(t))

	// WHEN: Publishing an approval
	require.NoError(t, n.Notify(context.Background(), approved))

	// THEN: One message keyed by user with the event as JSON
	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "leave-events", msg.Topic)
	assert.Equal(t, "u1", string(msg.Key))
	assert.Equal(t, kafka.Header{Key: "event_type", Value: []byte("leave.approved")}, msg.Headers[0])

	var got leave.Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, approved, got)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	n := newKafkaNotifier(w, "leave-events", zap.NewNop())

	err := n.Notify(context.Background(), approved)

	assert.ErrorContains(t, err, "leave.approved")
	assert.ErrorContains(t, err, "broker down")
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), approved))

	entries := logs.FilterMessage("leave event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "leave.approved", fields["type"])
	assert.Equal(t, int64(5), fields["days"])
	assert.Equal(t, "notify", entries[0].LoggerName)
}

type failing struct{ err error }

func (f failing) Notify(context.Context, leave.Event) error { return f.err }

func TestFanout(t *testing.T) {
	w := &fakeWriter{}
	boom := errors.New("boom")
	f := Fanout{failing{boom}, newKafkaNotifier(w, "t", zap.NewNop())}

	err := f.Notify(context.Background(), approved)

	assert.ErrorIs(t, err, boom)
	assert.Len(t, w.messages, 1, "a failing sink does not stop the others")
	assert.NoError(t, Fanout{}.Notify(context.Background(), approved))
}
