package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpig/jobcoord/pkg/queue"
)

func TestRingDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	r := queue.NewRing[string](1)
	defer r.Close()

	r.Enqueue("older")
	r.Enqueue("newer")

	got, ok := r.TryDrain(2)
	require.True(t, ok)
	assert.Equal(t, []string{"newer"}, got)
}

func TestRingNeverBlocksProducer(t *testing.T) {
	t.Parallel()

	r := queue.NewRing[int](2)
	defer r.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)

		// No consumer anywhere; every enqueue must still return.
		for i := 0; i < 1000; i++ {
			r.Enqueue(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ring enqueue blocked")
	}

	got, ok := r.TryDrain(10)
	require.True(t, ok)
	assert.Equal(t, []int{998, 999}, got)
}

func TestRingStreamTerminatesAtClose(t *testing.T) {
	t.Parallel()

	r := queue.NewRing[int](4)

	r.Enqueue(1)
	r.Enqueue(2)
	r.Close()

	var got []int
	for v := range r.Stream() {
		got = append(got, v)
	}

	assert.Equal(t, []int{1, 2}, got)
}

func TestRingEnqueueAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	r := queue.NewRing[int](2)
	r.Close()

	r.Enqueue(1)

	_, err := r.Dequeue(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestRingDequeueDeliversBufferedAfterClose(t *testing.T) {
	t.Parallel()

	r := queue.NewRing[int](2)
	r.Enqueue(7)
	r.Close()

	v, err := r.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = r.Dequeue(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
}
