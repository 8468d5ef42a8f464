package jobmanager

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nixpig/jobcoord/pkg/queue"
)

// runJob drives one job through its lifecycle: the front transition into
// the registry, the body iterating the job's sequence, and exactly-once
// cleanup. emit receives results for tap runners and is nil for submitted
// jobs, whose results are discarded by convention. The returned error is
// non-nil only when the front transition refuses to start the body: an id
// collision (tap path) or an InvalidStateError for a corrupt record.
func (m *Manager[I, N, R]) runJob(
	job Job[I, N, R],
	startedAt time.Time,
	ignoreAbsence bool,
	emit func(R) bool,
) error {
	// Fresh cancellation signal per runner, deliberately not derived from
	// any manager-wide context: shutdown signals runners through their
	// installed cancel actions, and the body observes the signal between
	// items and inside blocking enqueues.
	jobCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	running := runningContext(cancel)

	ok, err := m.frontTransition(job.ID, running, ignoreAbsence)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	m.log.Debug("job running", zap.Any("job_id", job.ID))

	var (
		failure error
		stopped bool
	)

body:
	for item, itemErr := range job.Run(jobCtx) {
		if jobCtx.Err() != nil {
			break body
		}

		if itemErr != nil {
			failure = itemErr
			break body
		}

		switch item.kind {
		case itemNotification:
			n := Notification[I, N]{JobID: job.ID, Payload: item.notification}

			if err := m.notifications.Enqueue(jobCtx, n); err != nil {
				if jobCtx.Err() != nil {
					break body
				}

				if errors.Is(err, queue.ErrClosed) {
					// Post-shutdown enqueue; drop the notification and keep
					// going. The runner still owes its cleanup below.
					continue
				}
			}
		case itemResult:
			if emit != nil && !emit(item.result) {
				stopped = true
				break body
			}
		}
	}

	canceled := jobCtx.Err() != nil || stopped
	m.finish(job.ID, running, startedAt, failure, canceled)

	return nil
}

// frontTransition installs running as the registry context for id, retrying
// CAS races against concurrent submitters and cancellers. It returns false
// when the body must be skipped. The error is non-nil when the id is
// already running (which only the tap path can surface) or when the record
// carries a status no runner can transition from.
func (m *Manager[I, N, R]) frontTransition(
	id I,
	running *jobContext,
	ignoreAbsence bool,
) (bool, error) {
	for {
		cur, ok := m.reg.get(id)
		if !ok {
			if !ignoreAbsence {
				// A cancel already cleaned the entry up, or the insert never
				// happened; nothing to run.
				return false, nil
			}

			if m.reg.insertIfAbsent(id, running) {
				return true, nil
			}

			continue
		}

		switch cur.status {
		case StatusPending:
			if m.reg.replaceIfEqual(id, cur, running) {
				return true, nil
			}
		case StatusCanceled:
			m.reg.removeIfEqual(id, cur)
			return false, nil
		case StatusRunning:
			return false, alreadyRunningError(id)
		default:
			return false, NewInvalidStateError(cur.status, StatusRunning)
		}
	}
}

// finish performs the runner's exactly-once cleanup. The registry removal
// is conditional on the exact Running context this runner installed, so a
// resubmission of the same id that raced the teardown is never clobbered.
// Canceled jobs terminate silently; everything else emits exactly one
// event, strictly after all of the job's notifications.
func (m *Manager[I, N, R]) finish(
	id I,
	running *jobContext,
	startedAt time.Time,
	failure error,
	canceled bool,
) {
	m.reg.removeIfEqual(id, running)

	if canceled {
		m.log.Debug("job canceled", zap.Any("job_id", id))
		return
	}

	ev := Event[I]{
		JobID:     id,
		StartedAt: startedAt,
		Duration:  m.cfg.Now().Sub(startedAt),
	}

	if failure != nil {
		ev.Kind = EventFailed
		ev.Err = failure

		m.log.Debug("job failed",
			zap.Any("job_id", id),
			zap.Duration("duration", ev.Duration),
			zap.Error(failure))
	} else {
		ev.Kind = EventCompleted

		m.log.Debug("job completed",
			zap.Any("job_id", id),
			zap.Duration("duration", ev.Duration))
	}

	m.events.Enqueue(ev)
}
