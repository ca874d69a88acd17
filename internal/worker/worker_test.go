package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/channels"
	"github.com/topocrawl/topocrawl/internal/crawler"
	"github.com/topocrawl/topocrawl/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []uuid.UUID
	result *crawler.Result
	err    error
	emit   []crawler.ProgressEvent
}

func (f *fakeRunner) Run(ctx context.Context, runID uuid.UUID, req crawler.Request, observe crawler.Observer) (*crawler.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runID)
	f.mu.Unlock()

	for _, ev := range f.emit {
		ev.RunID = runID
		if observe != nil {
			observe(ev)
		}
	}
	if f.result == nil {
		return nil, f.err
	}
	res := *f.result
	res.RunID = runID
	return &res, f.err
}

func (f *fakeRunner) runIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.calls...)
}

func sampleResult() *crawler.Result {
	started := time.Now().Add(-2 * time.Second)
	return &crawler.Result{
		Seeds:   []string{"192.0.2.1"},
		MaxHops: 2,
		Devices: map[string]*crawler.Device{
			"core-sw1": {ID: "core-sw1", Hop: 0, Status: crawler.StatusVisited},
			"edge-sw2": {ID: "edge-sw2", Hop: 1, Status: crawler.StatusVisited},
		},
		Edges: []crawler.Edge{
			{LocalID: "core-sw1", LocalInterface: "Gi1/0/1", RemoteID: "edge-sw2", RemoteInterface: "Gi0/24", Protocols: []string{"cdp"}},
		},
		StartedAt:   started,
		CompletedAt: started.Add(time.Second),
	}
}

func queueRun(t *testing.T, st store.Store, events *channels.EventChannels) uuid.UUID {
	t.Helper()
	id := uuid.New()
	req := crawler.Request{Seeds: []string{"192.0.2.1"}}
	err := st.CreateRun(context.Background(), &store.Run{
		ID:        id,
		Status:    store.StatusQueued,
		Seeds:     req.Seeds,
		MaxHops:   2,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	events.CrawlRequest <- channels.CrawlRequestEvent{RunID: id, Request: req, QueuedAt: time.Now()}
	return id
}

func waitCompleted(t *testing.T, events *channels.EventChannels) channels.CrawlCompletedEvent {
	t.Helper()
	select {
	case ev := <-events.CrawlCompleted:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion event")
		return channels.CrawlCompletedEvent{}
	}
}

func TestWorkerRunsQueuedCrawl(t *testing.T) {
	events := channels.NewEventChannels(channels.EventChannelsConfig{})
	st := store.NewMemoryStore()
	runner := &fakeRunner{
		result: sampleResult(),
		emit: []crawler.ProgressEvent{
			{DeviceID: "core-sw1", Status: crawler.StatusVisited, Hop: 0},
			{DeviceID: "edge-sw2", Status: crawler.StatusVisited, Hop: 1},
		},
	}
	w := NewWorker(events, st, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	id := queueRun(t, st, events)
	completed := waitCompleted(t, events)

	if completed.RunID != id {
		t.Errorf("completed.RunID = %s, want %s", completed.RunID, id)
	}
	if completed.Status != store.StatusCompleted {
		t.Errorf("completed.Status = %q, want %q", completed.Status, store.StatusCompleted)
	}
	if completed.DevicesFound != 2 || completed.EdgesFound != 1 {
		t.Errorf("counters = %d/%d, want 2/1", completed.DevicesFound, completed.EdgesFound)
	}

	// CompleteRun happens before the completion event is published.
	run, err := st.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != store.StatusCompleted {
		t.Errorf("stored status = %q, want %q", run.Status, store.StatusCompleted)
	}
	if run.StartedAt == nil || run.CompletedAt == nil {
		t.Error("run timestamps not stamped")
	}
	if run.DevicesFound != 2 {
		t.Errorf("DevicesFound = %d, want 2", run.DevicesFound)
	}

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events.CrawlProgress:
			if ev.Event.RunID != id {
				t.Errorf("progress event carries run %s, want %s", ev.Event.RunID, id)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing progress event %d", i)
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("worker exit err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after cancel")
	}
}

func TestWorkerKeepsPartialResultOnCancellation(t *testing.T) {
	events := channels.NewEventChannels(channels.EventChannelsConfig{})
	st := store.NewMemoryStore()
	runner := &fakeRunner{result: sampleResult(), err: context.Canceled}
	w := NewWorker(events, st, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	id := queueRun(t, st, events)
	completed := waitCompleted(t, events)

	if completed.Status != store.StatusPartial {
		t.Errorf("completed.Status = %q, want %q", completed.Status, store.StatusPartial)
	}

	run, err := st.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != store.StatusPartial {
		t.Errorf("stored status = %q, want %q", run.Status, store.StatusPartial)
	}
	if run.Error == "" {
		t.Error("interruption reason not recorded")
	}

	result, err := st.GetResult(context.Background(), id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(result.Devices) != 2 {
		t.Errorf("partial result lost: %d devices stored", len(result.Devices))
	}
}

func TestWorkerMarksRunFailed(t *testing.T) {
	events := channels.NewEventChannels(channels.EventChannelsConfig{})
	st := store.NewMemoryStore()
	runner := &fakeRunner{err: errors.New("unknown command \"show foo\"")}
	w := NewWorker(events, st, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	id := queueRun(t, st, events)
	completed := waitCompleted(t, events)

	if completed.Status != store.StatusFailed {
		t.Errorf("completed.Status = %q, want %q", completed.Status, store.StatusFailed)
	}
	if completed.DevicesFound != 0 {
		t.Errorf("DevicesFound = %d, want 0", completed.DevicesFound)
	}

	run, err := st.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != store.StatusFailed {
		t.Errorf("stored status = %q, want %q", run.Status, store.StatusFailed)
	}
	if run.Error == "" {
		t.Error("failure reason not recorded")
	}
	if _, err := st.GetResult(context.Background(), id); !errors.Is(err, store.ErrNoResult) {
		t.Errorf("GetResult err = %v, want ErrNoResult", err)
	}
}

func TestWorkerDropsRequestForUnknownRun(t *testing.T) {
	events := channels.NewEventChannels(channels.EventChannelsConfig{})
	st := store.NewMemoryStore()
	runner := &fakeRunner{result: sampleResult()}
	w := NewWorker(events, st, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Never stored, so the worker must refuse to execute it.
	orphan := uuid.New()
	events.CrawlRequest <- channels.CrawlRequestEvent{
		RunID:    orphan,
		Request:  crawler.Request{Seeds: []string{"192.0.2.9"}},
		QueuedAt: time.Now(),
	}

	// Events are handled in order, so once the second run completes the
	// orphan has been processed.
	known := queueRun(t, st, events)
	completed := waitCompleted(t, events)
	if completed.RunID != known {
		t.Fatalf("completed.RunID = %s, want %s", completed.RunID, known)
	}

	ids := runner.runIDs()
	if len(ids) != 1 || ids[0] != known {
		t.Errorf("engine ran %v, want only %s", ids, known)
	}
}

func TestWorkerExitsWhenChannelsClose(t *testing.T) {
	events := channels.NewEventChannels(channels.EventChannelsConfig{})
	st := store.NewMemoryStore()
	w := NewWorker(events, st, &fakeRunner{}, testLogger())

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	if err := events.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error after channel close, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after channel close")
	}
}
