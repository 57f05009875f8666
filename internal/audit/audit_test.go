package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	Emit(context.Background(), d, Event{EventType: EventRefresh, Success: true})
	Emit(context.Background(), d, Event{EventType: EventLogout, Success: true})
	d.Close()

	first := <-sink.Events()
	second := <-sink.Events()
	assert.Equal(t, EventRefresh, first.EventType)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, EventLogout, second.EventType)

	Emit(context.Background(), d, Event{EventType: EventLogin})
	select {
	case ev := <-sink.Events():
		t.Fatalf("event %q delivered after Close", ev.EventType)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{}, NoOpSink{})
	assert.Nil(t, d)
	assert.NotPanics(t, func() {
		Emit(context.Background(), d, Event{EventType: EventLogin})
		d.Close()
	})
	assert.Zero(t, d.Dropped())
}

func TestDropIfFullCountsDrops(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, blockingSink(block))
	defer func() {
		close(block)
		d.Close()
	}()

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: EventRefresh})
	}
	assert.Positive(t, d.Dropped())
}

type blockingSink chan struct{}

func (b blockingSink) Emit(context.Context, Event) { <-b }

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: EventSessionExpired, Role: "Owner"})

	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, EventSessionExpired, got["event_type"])
	assert.Equal(t, "Owner", got["role"])
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), Event{EventType: EventLogin, Success: true})
	s.Emit(context.Background(), Event{EventType: EventRefresh, Error: "boom"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}
