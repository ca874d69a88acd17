// Package worker executes queued crawl requests asynchronously.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/channels"
	"github.com/topocrawl/topocrawl/internal/crawler"
	"github.com/topocrawl/topocrawl/internal/store"
)

// Runner is the engine surface the worker drives.
type Runner interface {
	Run(ctx context.Context, runID uuid.UUID, req crawler.Request, observe crawler.Observer) (*crawler.Result, error)
}

// Worker processes crawl request events, one run at a time.
type Worker struct {
	events *channels.EventChannels
	store  store.Store
	engine Runner
	logger *slog.Logger

	// runningMu protects running
	runningMu sync.RWMutex
	// running tracks run ids currently executing
	running map[uuid.UUID]bool
}

// NewWorker creates a new crawl worker instance.
func NewWorker(events *channels.EventChannels, st store.Store, engine Runner, logger *slog.Logger) *Worker {
	return &Worker{
		events:  events,
		store:   st,
		engine:  engine,
		logger:  logger,
		running: make(map[uuid.UUID]bool),
	}
}

// Run starts the worker and begins processing crawl request events.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Crawl worker starting",
		slog.String("worker", "crawl"),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Crawl worker shutting down",
				slog.String("reason", ctx.Err().Error()),
			)
			return ctx.Err()

		case event, ok := <-w.events.CrawlRequest:
			if !ok {
				w.logger.WarnContext(ctx, "CrawlRequest channel closed, exiting worker")
				return fmt.Errorf("crawl request channel closed")
			}

			w.handleRequestEvent(ctx, event)
		}
	}
}

// handleRequestEvent processes a single crawl request event.
func (w *Worker) handleRequestEvent(ctx context.Context, event channels.CrawlRequestEvent) {
	logger := w.logger.With(
		slog.String("run_id", event.RunID.String()),
		slog.String("queued_at", event.QueuedAt.Format(time.RFC3339)),
	)

	// Check if the run is already executing
	w.runningMu.RLock()
	isRunning := w.running[event.RunID]
	w.runningMu.RUnlock()

	if isRunning {
		logger.WarnContext(ctx, "Crawl already running for this run id, skipping duplicate")
		return
	}

	// Mark run as executing
	w.runningMu.Lock()
	w.running[event.RunID] = true
	w.runningMu.Unlock()
	defer func() {
		w.runningMu.Lock()
		delete(w.running, event.RunID)
		w.runningMu.Unlock()
	}()

	if err := w.store.MarkRunStarted(ctx, event.RunID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.ErrorContext(ctx, "Run record not found, dropping request",
				slog.String("error", err.Error()),
			)
			return
		}
		logger.ErrorContext(ctx, "Failed to mark run started",
			slog.String("error", err.Error()),
		)
		// Continue even if the status update failed, main logic is execution
	}

	logger.InfoContext(ctx, "Starting crawl run",
		slog.Int("seed_count", len(event.Request.Seeds)),
	)

	observe := func(ev crawler.ProgressEvent) {
		select {
		case w.events.CrawlProgress <- channels.CrawlProgressEvent{Event: ev, Timestamp: time.Now()}:
		default:
			// A slow consumer must never stall the crawl; the store holds
			// the authoritative state.
			logger.DebugContext(ctx, "CrawlProgress channel full, event dropped",
				slog.String("device_id", ev.DeviceID),
			)
		}
	}

	result, runErr := w.engine.Run(ctx, event.RunID, event.Request, observe)

	status := store.StatusCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = store.StatusPartial
		logger.WarnContext(ctx, "Crawl interrupted, keeping partial result",
			slog.String("error", runErr.Error()),
		)
	default:
		status = store.StatusFailed
		logger.ErrorContext(ctx, "Crawl execution failed",
			slog.String("error", runErr.Error()),
		)
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	// Cancellation must not lose the partial result.
	persistCtx := context.WithoutCancel(ctx)
	if err := w.store.CompleteRun(persistCtx, event.RunID, status, result, errMsg); err != nil {
		logger.ErrorContext(ctx, "Failed to persist crawl result",
			slog.String("error", err.Error()),
		)
	}

	w.publishCompletedEvent(ctx, event, status, result)

	logger.InfoContext(ctx, "Crawl run finished",
		slog.String("status", status),
	)
}

// publishCompletedEvent publishes a crawl completion event.
func (w *Worker) publishCompletedEvent(
	ctx context.Context,
	event channels.CrawlRequestEvent,
	status string,
	result *crawler.Result,
) {
	completed := channels.CrawlCompletedEvent{
		RunID:       event.RunID,
		Status:      status,
		CompletedAt: time.Now(),
	}
	if result != nil {
		completed.DevicesFound = len(result.Devices)
		completed.EdgesFound = len(result.Edges)
		completed.FailureCount = len(result.Failures)
		completed.StartedAt = result.StartedAt
		if !result.CompletedAt.IsZero() {
			completed.CompletedAt = result.CompletedAt
		}
	}

	// Non-blocking send with context
	select {
	case w.events.CrawlCompleted <- completed:
		w.logger.DebugContext(ctx, "Published crawl completed event",
			slog.String("run_id", event.RunID.String()),
			slog.String("status", status),
			slog.Int("devices_found", completed.DevicesFound),
		)
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Context cancelled while publishing completion event",
			slog.String("run_id", event.RunID.String()),
		)
	default:
		// Channel full - log warning
		w.logger.WarnContext(ctx, "CrawlCompleted channel full, event dropped",
			slog.String("run_id", event.RunID.String()),
			slog.String("status", status),
		)
	}
}
