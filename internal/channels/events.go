package channels

import (
	"time"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/crawler"
)

// CrawlRequestEvent is published when a crawl is accepted for execution.
type CrawlRequestEvent struct {
	RunID    uuid.UUID
	Request  crawler.Request
	QueuedAt time.Time
}

// CrawlProgressEvent carries one per-device progress update out of a running
// crawl.
type CrawlProgressEvent struct {
	Event     crawler.ProgressEvent
	Timestamp time.Time
}

// CrawlCompletedEvent is published when a crawl finishes.
type CrawlCompletedEvent struct {
	RunID        uuid.UUID
	Status       string // "completed", "partial", "failed"
	DevicesFound int
	EdgesFound   int
	FailureCount int
	StartedAt    time.Time
	CompletedAt  time.Time
}

// EventChannels provides typed channels for the crawl lifecycle. Producers
// send non-blocking; a full channel drops the event rather than stalling a
// running crawl.
type EventChannels struct {
	CrawlRequest   chan CrawlRequestEvent
	CrawlProgress  chan CrawlProgressEvent
	CrawlCompleted chan CrawlCompletedEvent

	done chan struct{}
}

// NewEventChannels creates the channel hub with the configured buffer sizes.
func NewEventChannels(cfg EventChannelsConfig) *EventChannels {
	cfg = cfg.withDefaults()
	return &EventChannels{
		CrawlRequest:   make(chan CrawlRequestEvent, cfg.RequestBufferSize),
		CrawlProgress:  make(chan CrawlProgressEvent, cfg.ProgressBufferSize),
		CrawlCompleted: make(chan CrawlCompletedEvent, cfg.CompletedBufferSize),
		done:           make(chan struct{}),
	}
}

// Close shuts the hub down. Consumers exit on their channel closing or on
// Done, whichever they see first.
func (ec *EventChannels) Close() error {
	close(ec.done)
	close(ec.CrawlRequest)
	close(ec.CrawlProgress)
	close(ec.CrawlCompleted)
	return nil
}

// Done is closed when the hub is shutting down.
func (ec *EventChannels) Done() <-chan struct{} {
	return ec.done
}
