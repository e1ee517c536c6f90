package canbus

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu      sync.Mutex
	records []slog.Record
}

func (s *recordSink) Enabled(context.Context, slog.Level) bool { return true }
func (s *recordSink) Handle(_ context.Context, r slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r.Clone())
	return nil
}
func (s *recordSink) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s *recordSink) WithGroup(string) slog.Handler      { return s }

func (s *recordSink) has(level slog.Level, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Level == level && r.Message == msg {
			return true
		}
	}
	return false
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestLoggedBus_WriteAndReadLogging(t *testing.T) {
	lb := NewLoopbackBus()
	defer lb.Close()

	sink := &recordSink{}
	logger := slog.New(sink)

	sender := NewLoggedBus(lb.Open(), logger, slog.LevelInfo, LogWrite)
	receiver := NewLoggedBus(lb.Open(), logger, slog.LevelInfo, LogRead)
	defer sender.Close()
	defer receiver.Close()

	ctx := testContext(t)
	require.NoError(t, sender.Send(ctx, MustFrame(0x6C5, []byte{64, 15, 0, 0xF0, 0xE8, 0x03, 3, 1})))
	_, err := receiver.Receive(ctx)
	require.NoError(t, err)

	require.True(t, sink.has(slog.LevelInfo, "canbus send"))
	require.True(t, sink.has(slog.LevelInfo, "canbus receive"))
}

func TestLoggedBus_ErrorLogging(t *testing.T) {
	lb := NewLoopbackBus()
	rx := lb.Open()
	_ = rx.Close()

	sink := &recordSink{}
	wrapped := NewLoggedBus(rx, slog.New(sink), slog.LevelInfo, LogRead)
	_, _ = wrapped.Receive(context.Background())

	require.True(t, sink.has(slog.LevelError, "canbus receive error"))
}

func TestLoggedBus_Filter(t *testing.T) {
	lb := NewLoopbackBus()
	defer lb.Close()
	sink := &recordSink{}
	tx := NewLoggedBusWithFilter(lb.Open(), slog.New(sink), slog.LevelDebug, LogWrite, ByBlock(0x700, 32))
	_ = lb.Open()

	ctx := testContext(t)
	require.NoError(t, tx.Send(ctx, MustFrame(0x123, nil)))
	require.Equal(t, 0, sink.count())
	require.NoError(t, tx.Send(ctx, MustFrame(0x705, nil)))
	require.Equal(t, 1, sink.count())
}
