package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nixpig/jobcoord/pkg/jobmanager"
)

const (
	// drainLimit caps how many queued items a single debug request may
	// drain from the notifications or events queues.
	drainLimit = 100

	readHeaderTimeout = 5 * time.Second
)

type jobStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type eventResponse struct {
	Kind        string `json:"kind"`
	JobID       string `json:"job_id"`
	StartedAtMS int64  `json:"started_at_ms"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

type notificationResponse struct {
	JobID   string `json:"job_id"`
	Payload string `json:"payload"`
}

// newDebugServer exposes the manager's introspection surface over HTTP:
// registered jobs, per-job status and cancellation, and best-effort drains
// of the queued events and notifications.
func newDebugServer(
	addr string,
	manager *jobmanager.Manager[string, string, string],
	logger *zap.Logger,
) *http.Server {
	r := chi.NewRouter()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Warn("encode debug response", zap.Error(err))
		}
	}

	r.Get("/jobs", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, manager.JobIDs())
	})

	r.Get("/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")

		status, ok := manager.Status(id)
		if !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		writeJSON(w, jobStatusResponse{ID: id, Status: status.String()})
	})

	r.Post("/jobs/{id}/cancel", func(w http.ResponseWriter, req *http.Request) {
		manager.Cancel(chi.URLParam(req, "id"))
		w.WriteHeader(http.StatusAccepted)
	})

	r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
		events, ok := manager.LastEvents(drainParam(req))
		if !ok {
			http.Error(w, "manager closed", http.StatusServiceUnavailable)
			return
		}

		out := make([]eventResponse, 0, len(events))
		for _, ev := range events {
			resp := eventResponse{
				Kind:        ev.Kind.String(),
				JobID:       ev.JobID,
				StartedAtMS: ev.StartedAt.UnixMilli(),
				DurationMS:  ev.Duration.Milliseconds(),
			}

			if ev.Err != nil {
				resp.Error = ev.Err.Error()
			}

			out = append(out, resp)
		}

		writeJSON(w, out)
	})

	r.Get("/notifications", func(w http.ResponseWriter, req *http.Request) {
		notifications, ok := manager.LastNotifications(drainParam(req))
		if !ok {
			http.Error(w, "manager closed", http.StatusServiceUnavailable)
			return
		}

		out := make([]notificationResponse, 0, len(notifications))
		for _, n := range notifications {
			out = append(out, notificationResponse{JobID: n.JobID, Payload: n.Payload})
		}

		writeJSON(w, out)
	})

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func drainParam(req *http.Request) int {
	n, err := strconv.Atoi(req.URL.Query().Get("n"))
	if err != nil || n < 1 || n > drainLimit {
		return drainLimit
	}

	return n
}
