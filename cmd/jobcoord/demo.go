package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nixpig/jobcoord/pkg/jobmanager"
)

// run wires a Manager to a fleet of demonstration jobs, streams their
// notifications and events to the log, and serves the debug HTTP endpoints
// until ctx is canceled.
func run(ctx context.Context, cfg *config) error {
	logger, err := newLogger(cfg.debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	manager := jobmanager.New[string, string, string](jobmanager.Config{
		JobLimit:           cfg.jobLimit,
		NotificationsLimit: cfg.notificationsLimit,
		EventsLimit:        cfg.eventsLimit,
		JobConcurrency:     cfg.jobConcurrency,
		Logger:             logger,
	})
	defer manager.Shutdown()

	var wg sync.WaitGroup

	wg.Go(func() {
		for n := range manager.Notifications() {
			logger.Info("notification",
				zap.String("job_id", n.JobID),
				zap.String("payload", n.Payload))
		}
	})

	wg.Go(func() {
		for ev := range manager.Events() {
			logger.Info("event",
				zap.Stringer("kind", ev.Kind),
				zap.String("job_id", ev.JobID),
				zap.Int64("started_at_ms", ev.StartedAt.UnixMilli()),
				zap.Duration("duration", ev.Duration),
				zap.Error(ev.Err))
		}
	})

	srv := newDebugServer(
		net.JoinHostPort(cfg.host, strconv.Itoa(int(cfg.port))),
		manager,
		logger,
	)

	go func() {
		logger.Info("debug server listening", zap.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error("debug server", zap.Error(err))
		}
	}()

	for i := 0; i < cfg.demoJobs; i++ {
		job := tickerJob(uuid.NewString(), cfg.demoTicks, cfg.demoTickRate)

		accepted, err := manager.Submit(ctx, job)
		if err != nil {
			return fmt.Errorf("submit demo job: %w", err)
		}

		logger.Info("submitted demo job",
			zap.String("job_id", job.ID),
			zap.Bool("accepted", accepted))
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("debug server shutdown", zap.Error(err))
	}

	manager.Shutdown()
	wg.Wait()

	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

// tickerJob produces count notifications paced at perSecond, then a single
// result. Pacing stops immediately when the job is canceled.
func tickerJob(id string, count int, perSecond float64) jobmanager.Job[string, string, string] {
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	return jobmanager.Job[string, string, string]{
		ID: id,
		Run: func(ctx context.Context) iter.Seq2[jobmanager.Item[string, string], error] {
			return func(yield func(jobmanager.Item[string, string], error) bool) {
				for i := 1; i <= count; i++ {
					if err := limiter.Wait(ctx); err != nil {
						return
					}

					tick := jobmanager.NotifyItem[string, string]("tick " + strconv.Itoa(i))
					if !yield(tick, nil) {
						return
					}
				}

				yield(jobmanager.ResultItem[string, string]("done"), nil)
			}
		},
	}
}
