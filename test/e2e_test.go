package e2e_test

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpig/jobcoord/pkg/jobmanager"
)

type (
	job  = jobmanager.Job[string, int, string]
	item = jobmanager.Item[int, string]
)

func countingJob(id string, notifications ...int) job {
	return job{
		ID: id,
		Run: func(ctx context.Context) iter.Seq2[item, error] {
			return func(yield func(item, error) bool) {
				for _, n := range notifications {
					if ctx.Err() != nil {
						return
					}

					if !yield(jobmanager.NotifyItem[int, string](n), nil) {
						return
					}
				}
			}
		},
	}
}

// TestBatchOfJobs drives a small manager through a full batch: three jobs,
// two notifications each, consumed from the shared streams.
func TestBatchOfJobs(t *testing.T) {
	m := jobmanager.New[string, int, string](jobmanager.Config{
		JobLimit:           4,
		NotificationsLimit: 8,
		EventsLimit:        4,
		JobConcurrency:     2,
	})
	t.Cleanup(m.Shutdown)

	notifications := make(chan jobmanager.Notification[string, int], 16)
	go func() {
		defer close(notifications)
		for n := range m.Notifications() {
			notifications <- n
		}
	}()

	events := make(chan jobmanager.Event[string], 16)
	go func() {
		defer close(events)
		for ev := range m.Events() {
			events <- ev
		}
	}()

	for _, id := range []string{"a", "b", "c"} {
		accepted, err := m.Submit(context.Background(), countingJob(id, 1, 2))
		require.NoError(t, err)
		require.True(t, accepted, "expected submit of '%s' to be accepted", id)
	}

	lastSeen := map[string]int{}

	for range 6 {
		select {
		case n := <-notifications:
			require.Equal(t, lastSeen[n.JobID]+1, n.Payload,
				"out-of-order notification for job '%s'", n.JobID)
			lastSeen[n.JobID] = n.Payload
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notifications")
		}
	}

	completed := map[string]bool{}

	for range 3 {
		select {
		case ev := <-events:
			assert.Equal(t, jobmanager.EventCompleted, ev.Kind)
			assert.False(t, completed[ev.JobID], "duplicate event for '%s'", ev.JobID)
			completed[ev.JobID] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	assert.Len(t, completed, 3)

	require.Eventually(t, func() bool {
		return len(m.JobIDs()) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

// TestMixedWorkload exercises submit, tap, and cancel together against one
// manager, the way a real client mixes them.
func TestMixedWorkload(t *testing.T) {
	m := jobmanager.New[string, int, string](jobmanager.Config{JobConcurrency: 4})
	t.Cleanup(m.Shutdown)

	// Keep the shared notifications stream drained in the background.
	go func() {
		for range m.Notifications() {
		}
	}()

	events := make(chan jobmanager.Event[string], 64)
	go func() {
		defer close(events)
		for ev := range m.Events() {
			events <- ev
		}
	}()

	// A long-running job we cancel partway through.
	victim := job{
		ID: uuid.NewString(),
		Run: func(ctx context.Context) iter.Seq2[item, error] {
			return func(yield func(item, error) bool) {
				for i := 1; ; i++ {
					if ctx.Err() != nil {
						return
					}

					if !yield(jobmanager.NotifyItem[int, string](i), nil) {
						return
					}
				}
			}
		},
	}

	accepted, err := m.Submit(context.Background(), victim)
	require.NoError(t, err)
	require.True(t, accepted)

	// A handful of batch jobs.
	batch := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		id := uuid.NewString()
		batch = append(batch, id)

		accepted, err := m.Submit(context.Background(), countingJob(id, 1, 2, 3))
		require.NoError(t, err)
		require.True(t, accepted)
	}

	// A tapped job whose results come back inline.
	tapped := job{
		ID: uuid.NewString(),
		Run: func(ctx context.Context) iter.Seq2[item, error] {
			return func(yield func(item, error) bool) {
				for _, r := range []string{"one", "two"} {
					if !yield(jobmanager.ResultItem[int, string](r), nil) {
						return
					}
				}
			}
		},
	}

	var results []string
	for r, err := range m.Tap(tapped) {
		require.NoError(t, err)
		results = append(results, r)
	}
	assert.Equal(t, []string{"one", "two"}, results)

	m.Cancel(victim.ID)

	require.Eventually(t, func() bool {
		return len(m.JobIDs()) == 0
	}, 2*time.Second, 5*time.Millisecond)

	// Every batch job and the tapped job completed; the victim is absent
	// from both the registry and the event record.
	counts := map[string]int{}

collect:
	for {
		select {
		case ev := <-events:
			require.Equal(t, jobmanager.EventCompleted, ev.Kind)
			counts[ev.JobID]++
		case <-time.After(200 * time.Millisecond):
			break collect
		}
	}

	for _, id := range batch {
		assert.Equal(t, 1, counts[id], "expected one event for batch job '%s'", id)
	}

	assert.Equal(t, 1, counts[tapped.ID])
	assert.Zero(t, counts[victim.ID], "canceled job must not emit an event")

	_, ok := m.Status(victim.ID)
	assert.False(t, ok)
}
