package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	failures int
	calls    int
	msgs     []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("leader not available")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherRetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newKafkaPublisher(w, KafkaConfig{Topic: "leadops.events"})
	var slept []time.Duration
	p.sleep = func(d time.Duration) { slept = append(slept, d) }

	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{Type: LeadRouted, Key: "lead-1", Source: "dispatch", Timestamp: at, Data: map[string]string{"target": "inbound"}})
	require.NoError(t, err)

	assert.Equal(t, 3, w.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, slept)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "lead-1", string(w.msgs[0].Key))
	assert.Equal(t, "eventType", w.msgs[0].Headers[0].Key)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, LeadRouted, decoded["eventType"])
	assert.Equal(t, "dispatch", decoded["source"])
}

func TestKafkaPublisherGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newKafkaPublisher(w, KafkaConfig{Topic: "leadops.events", MaxAttempts: 2})
	p.sleep = func(time.Duration) {}

	err := p.Publish(context.Background(), Event{Type: AlertRaised, Key: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, w.calls)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestMemoryFiltersByType(t *testing.T) {
	m := &Memory{}
	require.NoError(t, m.Publish(context.Background(), Event{Type: LeadRouted}))
	require.NoError(t, m.Publish(context.Background(), Event{Type: AlertRaised}))
	assert.Len(t, m.Events(""), 2)
	assert.Len(t, m.Events(AlertRaised), 1)
}
