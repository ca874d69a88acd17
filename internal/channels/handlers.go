package channels

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Broadcaster fans an event out to connected streaming clients. The API
// layer's websocket hub satisfies this.
type Broadcaster interface {
	Broadcast(event string, runID uuid.UUID, payload any)
}

// StartCompletionConsumer starts the single consumer of CrawlCompleted: it
// logs every completion and forwards it to the hub when one is attached.
func StartCompletionConsumer(ctx context.Context, events *EventChannels, hub Broadcaster, logger *slog.Logger) {
	go func() {
		for {
			select {
			case event, ok := <-events.CrawlCompleted:
				if !ok {
					return
				}
				logger.InfoContext(ctx, "Crawl completed",
					slog.String("run_id", event.RunID.String()),
					slog.String("status", event.Status),
					slog.Int("devices_found", event.DevicesFound),
					slog.Int("edges_found", event.EdgesFound),
					slog.Int("failures", event.FailureCount),
					slog.String("duration", event.CompletedAt.Sub(event.StartedAt).String()),
				)
				if hub != nil {
					hub.Broadcast("crawl.completed", event.RunID, event)
				}
			case <-ctx.Done():
				return
			case <-events.Done():
				return
			}
		}
	}()
}

// StartProgressConsumer starts the single consumer of CrawlProgress and
// forwards each device update to the hub when one is attached.
func StartProgressConsumer(ctx context.Context, events *EventChannels, hub Broadcaster, logger *slog.Logger) {
	go func() {
		for {
			select {
			case event, ok := <-events.CrawlProgress:
				if !ok {
					return
				}
				logger.DebugContext(ctx, "Crawl progress",
					slog.String("run_id", event.Event.RunID.String()),
					slog.String("device", event.Event.DeviceID),
					slog.String("status", string(event.Event.Status)),
					slog.Int("hop", event.Event.Hop),
				)
				if hub != nil {
					hub.Broadcast("crawl.progress", event.Event.RunID, event.Event)
				}
			case <-ctx.Done():
				return
			case <-events.Done():
				return
			}
		}
	}()
}
