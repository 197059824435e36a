package notifier

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertrelay/alertrelay/internal/bus"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue()
	for i := 0; i < 5; i++ {
		require.True(t, q.push(envelope(fmt.Sprint(i))))
	}
	assert.Equal(t, 5, q.len())

	for i := 0; i < 5; i++ {
		env, ok := q.pop(context.Background())
		require.True(t, ok)
		assert.Equal(t, fmt.Sprint(i), env.Text())
	}
	assert.Equal(t, 0, q.len())
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := newQueue()
	got := make(chan bus.Envelope, 1)
	go func() {
		env, _ := q.pop(context.Background())
		got <- env
	}()

	select {
	case <-got:
		t.Fatal("pop returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(envelope("wake"))
	select {
	case env := <-got:
		assert.Equal(t, "wake", env.Text())
	case <-time.After(time.Second):
		t.Fatal("pop did not wake")
	}
}

func TestQueue_CloseKeepsQueuedItems(t *testing.T) {
	q := newQueue()
	q.push(envelope("a"))
	q.close()

	assert.False(t, q.push(envelope("b")))
	env, ok := q.pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", env.Text())
	_, ok = q.pop(context.Background())
	assert.False(t, ok)
}

func TestQueue_CancelledContext(t *testing.T) {
	q := newQueue()
	q.push(envelope("a"))
	q.push(envelope("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.pop(ctx)
	assert.False(t, ok)
	assert.Len(t, q.drain(), 2)
	assert.Equal(t, 0, q.len())
}
