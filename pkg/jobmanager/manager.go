package jobmanager

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nixpig/jobcoord/pkg/queue"
)

// Config configures a Manager. The zero value of any field selects its
// default, so Config{} is a usable configuration.
type Config struct {
	// JobLimit is the dispatch queue capacity. Submit blocks once this many
	// accepted jobs are waiting to be dispatched. Default: 100.
	JobLimit int

	// NotificationsLimit is the shared notifications queue capacity. A full
	// queue backpressures producing jobs until consumers catch up.
	// Default: 10.
	NotificationsLimit int

	// EventsLimit is the events ring size. When full, the oldest event is
	// dropped so a terminating runner never blocks. Default: 10.
	EventsLimit int

	// JobConcurrency is the maximum number of dispatched jobs executing in
	// parallel. Default: 100.
	JobConcurrency int

	// Logger receives lifecycle logs. Default: zap.NewNop().
	Logger *zap.Logger

	// Now is the clock used to stamp events. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default Manager configuration.
func DefaultConfig() Config {
	return Config{
		JobLimit:           100,
		NotificationsLimit: 10,
		EventsLimit:        10,
		JobConcurrency:     100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.JobLimit <= 0 {
		c.JobLimit = def.JobLimit
	}
	if c.NotificationsLimit <= 0 {
		c.NotificationsLimit = def.NotificationsLimit
	}
	if c.EventsLimit <= 0 {
		c.EventsLimit = def.EventsLimit
	}
	if c.JobConcurrency <= 0 {
		c.JobConcurrency = def.JobConcurrency
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return c
}

// Manager coordinates parallel asynchronous Jobs, identified by id.
//
// Submitted jobs run concurrently under Config.JobConcurrency. Per-job
// notifications are aggregated onto one shared stream, terminations are
// reported on a shared events stream, and any job can be canceled by id.
// The registry of in-flight jobs is the only shared mutable state; all
// access to it goes through single-key atomic operations, so no lock is
// ever held across a queue operation.
type Manager[I comparable, N, R any] struct {
	cfg Config
	log *zap.Logger

	reg registry[I]

	notifications *queue.Bounded[Notification[I, N]]
	events        *queue.Ring[Event[I]]
	dispatch      *queue.Bounded[func()]

	shutdownOnce sync.Once
	drained      chan struct{}
}

// New creates a Manager and starts its dispatcher. Callers own the
// Manager's lifetime and must pair New with Shutdown:
//
//	m := jobmanager.New[string, string, string](jobmanager.Config{})
//	defer m.Shutdown()
func New[I comparable, N, R any](cfg Config) *Manager[I, N, R] {
	cfg = cfg.withDefaults()

	m := &Manager[I, N, R]{
		cfg:           cfg,
		log:           cfg.Logger,
		notifications: queue.NewBounded[Notification[I, N]](cfg.NotificationsLimit),
		events:        queue.NewRing[Event[I]](cfg.EventsLimit),
		dispatch:      queue.NewBounded[func()](cfg.JobLimit),
		drained:       make(chan struct{}),
	}

	go m.dispatchLoop()

	return m
}

// dispatchLoop drains the dispatch queue, running up to JobConcurrency
// runners in parallel, until the queue is closed. Runners dequeued after
// shutdown find the registry cleared and skip their bodies.
func (m *Manager[I, N, R]) dispatchLoop() {
	defer close(m.drained)

	var g errgroup.Group
	g.SetLimit(m.cfg.JobConcurrency)
	defer g.Wait()

	for {
		run, err := m.dispatch.Dequeue(context.Background())
		if err != nil {
			return
		}

		g.Go(func() error {
			run()
			return nil
		})
	}
}

// Submit accepts job for concurrent dispatch. It returns false, with no
// side effects, when the id is already registered. Submit blocks while the
// dispatch queue is full; the job is visible as Pending for the whole wait.
// ctx bounds only that wait: if it ends first, the Pending entry is rolled
// back and the ctx error returned. After Shutdown, Submit returns
// ErrManagerClosed.
func (m *Manager[I, N, R]) Submit(ctx context.Context, job Job[I, N, R]) (bool, error) {
	pending := pendingContext()

	if !m.reg.insertIfAbsent(job.ID, pending) {
		return false, nil
	}

	startedAt := m.cfg.Now()
	run := func() { m.runJob(job, startedAt, false, nil) }

	if err := m.dispatch.Enqueue(ctx, run); err != nil {
		// The job never reached the dispatch queue, so no runner will ever
		// own this entry and the id stays blocked until it is removed. An
		// unconditional remove is safe here and also covers a canceller
		// having CASed the Pending entry to Canceled in the meantime; that
		// record still belongs to this submission.
		m.reg.remove(job.ID)

		if errors.Is(err, queue.ErrClosed) {
			err = ErrManagerClosed
		}

		return false, err
	}

	m.log.Debug("job submitted", zap.Any("job_id", job.ID))

	return true, nil
}

// Tap runs job inline on the consumer of the returned sequence, rather than
// through the dispatcher. Results flow to the consumer; notifications are
// still routed to the shared notifications stream, and termination is
// reported on the events stream like any other job.
//
// If the id is already registered as running, the sequence delivers
// ErrJobAlreadyRunning as its final element. The collision surfaces when
// the sequence is consumed, not when Tap is called. A consumer that stops
// ranging early cancels the job: the registry entry is cleaned up and no
// event is emitted.
func (m *Manager[I, N, R]) Tap(job Job[I, N, R]) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		startedAt := m.cfg.Now()

		stopped := false
		emit := func(r R) bool {
			if !yield(r, nil) {
				stopped = true
				return false
			}
			return true
		}

		if err := m.runJob(job, startedAt, true, emit); err != nil && !stopped {
			var zero R
			yield(zero, err)
		}
	}
}

// Cancel requests cancellation of the job with the given id and returns
// immediately. A pending job is marked so it never starts; a running body
// stops at its next suspension point. In either case no event is emitted.
// Cancel of an unknown or already-terminated id is a no-op, and repeated
// calls are idempotent.
func (m *Manager[I, N, R]) Cancel(id I) {
	for {
		cur, ok := m.reg.get(id)
		if !ok {
			return
		}

		switch cur.status {
		case StatusRunning:
			cur.cancel()
			m.log.Debug("canceled running job", zap.Any("job_id", id))
			return
		case StatusPending:
			// Losing this CAS means the runner just moved the job to
			// Running; go around and signal it instead.
			if m.reg.replaceIfEqual(id, cur, canceledContext()) {
				m.log.Debug("canceled pending job", zap.Any("job_id", id))
				return
			}
		default:
			return
		}
	}
}

// Status reports the registry status of the job with the given id, or
// false when the id is not registered.
func (m *Manager[I, N, R]) Status(id I) (Status, bool) {
	cur, ok := m.reg.get(id)
	if !ok {
		return StatusUnknown, false
	}

	return cur.status, true
}

// JobIDs returns a snapshot of the ids currently registered.
func (m *Manager[I, N, R]) JobIDs() []I {
	return m.reg.keys()
}

// LastNotifications drains and returns up to n queued notifications without
// blocking. It returns false after Shutdown. This is a best-effort
// introspection facility: it competes with Notifications consumers and is
// not a substitute for consuming the stream.
func (m *Manager[I, N, R]) LastNotifications(n int) ([]Notification[I, N], bool) {
	return m.notifications.TryDrain(n)
}

// LastEvents drains and returns up to n queued events without blocking. It
// returns false after Shutdown.
func (m *Manager[I, N, R]) LastEvents(n int) ([]Event[I], bool) {
	return m.events.TryDrain(n)
}

// Notifications returns the shared notifications stream. Notifications from
// a single job appear in production order; notifications from different
// jobs interleave arbitrarily. The sequence terminates at Shutdown.
// Concurrent consumers split the stream between them.
func (m *Manager[I, N, R]) Notifications() iter.Seq[Notification[I, N]] {
	return m.notifications.Stream()
}

// Events returns the lifecycle event stream. A job's event appears strictly
// after all of its notifications have been enqueued. The sequence
// terminates at Shutdown.
func (m *Manager[I, N, R]) Events() iter.Seq[Event[I]] {
	return m.events.Stream()
}

// Shutdown cancels running jobs, clears the registry, and terminates the
// notifications, events, and dispatch queues. Closing a queue never blocks,
// so neither a full queue nor a slow consumer can stall Shutdown; it then
// waits for in-flight runners to observe cancellation and drain. Shutdown
// is safe to call more than once.
func (m *Manager[I, N, R]) Shutdown() {
	m.shutdownOnce.Do(func() {
		// Closing dispatch first stops new submissions and new runner
		// starts; an in-flight Submit blocked on the queue is released and
		// rolls its Pending entry back.
		m.dispatch.Close()

		m.log.Debug("shutting down", zap.Int("in_flight", m.reg.size()))

		for _, id := range m.reg.keys() {
			// A queued runner can still promote its entry Pending→Running
			// underneath us, so remove conditionally and re-observe on
			// failure rather than deleting blind.
			for {
				cur, ok := m.reg.get(id)
				if !ok {
					break
				}

				if cur.status == StatusRunning {
					cur.cancel()
				}

				if m.reg.removeIfEqual(id, cur) {
					break
				}
			}
		}

		m.notifications.Close()
		m.events.Close()

		<-m.drained

		m.log.Debug("manager shut down")
	})
}
