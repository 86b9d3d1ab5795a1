package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
)

type readResult struct {
	msg kafka.Message
	err error
}

// scriptedReader replays a fixed sequence of reads, then reports the
// reader as closed.
type scriptedReader struct {
	script []readResult
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.script) == 0 {
		return kafka.Message{}, context.Canceled
	}
	next := r.script[0]
	r.script = r.script[1:]
	return next.msg, next.err
}

type stubShutdowner struct {
	calls int
}

func (s *stubShutdowner) Shutdown(...fx.ShutdownOption) error {
	s.calls++
	return nil
}

func errorResults(n int) []readResult {
	results := make([]readResult, n)
	for i := range results {
		results[i] = readResult{err: errors.New("broker unreachable")}
	}
	return results
}

func TestReadFeed(t *testing.T) {
	t.Parallel()

	t.Run("dispatches messages in order", func(t *testing.T) {
		reader := &scriptedReader{script: []readResult{
			{msg: kafka.Message{Key: []byte("a")}},
			{msg: kafka.Message{Key: []byte("b")}},
		}}
		sd := &stubShutdowner{}

		var keys []string
		readFeed(context.Background(), reader, sd, time.Microsecond, func(msg kafka.Message) {
			keys = append(keys, string(msg.Key))
		})

		assert.Equal(t, []string{"a", "b"}, keys)
		assert.Zero(t, sd.calls)
	})

	t.Run("shuts the app down after persistent reader failures", func(t *testing.T) {
		reader := &scriptedReader{script: errorResults(maxReadFailures)}
		sd := &stubShutdowner{}

		dispatched := 0
		readFeed(context.Background(), reader, sd, time.Microsecond, func(kafka.Message) {
			dispatched++
		})

		assert.Equal(t, 1, sd.calls)
		assert.Zero(t, dispatched)
	})

	t.Run("a successful read resets the failure budget", func(t *testing.T) {
		script := errorResults(maxReadFailures - 1)
		script = append(script, readResult{msg: kafka.Message{Key: []byte("ok")}})
		script = append(script, errorResults(maxReadFailures-1)...)
		reader := &scriptedReader{script: script}
		sd := &stubShutdowner{}

		dispatched := 0
		readFeed(context.Background(), reader, sd, time.Microsecond, func(kafka.Message) {
			dispatched++
		})

		assert.Zero(t, sd.calls)
		assert.Equal(t, 1, dispatched)
	})

	t.Run("cancellation stops the loop without a shutdown", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		reader := &scriptedReader{script: errorResults(1)}
		sd := &stubShutdowner{}

		readFeed(ctx, reader, sd, time.Microsecond, func(kafka.Message) {
			t.Fatal("dispatch after cancellation")
		})

		assert.Zero(t, sd.calls)
		assert.Len(t, reader.script, 1)
	})
}
