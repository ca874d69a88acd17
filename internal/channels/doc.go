// Package channels carries crawl lifecycle events between the API layer,
// the crawl worker and the streaming hub over typed Go channels.
//
// Each event type has its own channel, so consumers never type-assert and a
// slow consumer of one event kind cannot stall the others:
//
//   - CrawlRequest: API -> worker, one event per accepted crawl
//   - CrawlProgress: worker -> hub, one event per processed device
//   - CrawlCompleted: worker -> completion consumer, one event per finished run
//
// # Delivery semantics
//
// Producers send with a non-blocking select. A full buffer drops the event:
// progress and completion events are advisory, and the authoritative state
// always lives in the run store, so dropping is preferable to back-pressuring
// a crawl in flight. Each channel has exactly one consumer.
//
// # Shutdown
//
//	events := NewEventChannels(cfg)
//	defer events.Close()
//
// Close closes every channel plus the Done signal; consumers exit on
// whichever they observe first.
package channels
