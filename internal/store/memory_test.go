package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/crawler"
)

func newQueuedRun() *Run {
	return &Run{
		ID:        uuid.New(),
		Status:    StatusQueued,
		Seeds:     []string{"192.0.2.1"},
		MaxHops:   3,
		Commands:  crawler.DefaultCommands(),
		CreatedAt: nowUTC(),
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	run := newQueuedRun()

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusQueued {
		t.Errorf("status = %q, want %q", got.Status, StatusQueued)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Errorf("queued run should have no timestamps, got started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}

	if err := s.MarkRunStarted(ctx, run.ID); err != nil {
		t.Fatalf("MarkRunStarted: %v", err)
	}
	got, err = s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun after start: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %q, want %q", got.Status, StatusRunning)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt not stamped")
	}

	result := &crawler.Result{
		RunID:   run.ID,
		Seeds:   run.Seeds,
		MaxHops: run.MaxHops,
		Devices: map[string]*crawler.Device{
			"core-sw1": {ID: "core-sw1", Hop: 0, Status: crawler.StatusVisited},
			"edge-sw2": {ID: "edge-sw2", Hop: 1, Status: crawler.StatusVisited},
		},
		Edges: []crawler.Edge{
			{LocalID: "core-sw1", LocalInterface: "Gi1/0/1", RemoteID: "edge-sw2", RemoteInterface: "Gi0/24", Protocols: []string{"cdp"}},
		},
		Failures: []crawler.Failure{
			{DeviceID: "10.0.0.9", Kind: crawler.FailureUnreachableHost, Detail: "no route"},
		},
	}
	if err := s.CompleteRun(ctx, run.ID, StatusCompleted, result, ""); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	got, err = s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun after complete: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if got.DevicesFound != 2 || got.EdgesFound != 1 || got.FailureCount != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1", got.DevicesFound, got.EdgesFound, got.FailureCount)
	}

	stored, err := s.GetResult(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(stored.Devices) != 2 || len(stored.Edges) != 1 {
		t.Errorf("result has %d devices, %d edges, want 2, 1", len(stored.Devices), len(stored.Edges))
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := uuid.New()

	if _, err := s.GetRun(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun err = %v, want ErrNotFound", err)
	}
	if err := s.MarkRunStarted(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRunStarted err = %v, want ErrNotFound", err)
	}
	if err := s.CompleteRun(ctx, id, StatusFailed, nil, "boom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteRun err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetResult(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResult err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreNoResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	run := newQueuedRun()

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := s.GetResult(ctx, run.ID); !errors.Is(err, ErrNoResult) {
		t.Errorf("GetResult before completion err = %v, want ErrNoResult", err)
	}

	// A run that failed before producing a graph stays resultless.
	if err := s.CompleteRun(ctx, run.ID, StatusFailed, nil, "all seeds invalid"); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	if _, err := s.GetResult(ctx, run.ID); !errors.Is(err, ErrNoResult) {
		t.Errorf("GetResult after failed run err = %v, want ErrNoResult", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Error != "all seeds invalid" {
		t.Errorf("Error = %q, want %q", got.Error, "all seeds invalid")
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		run := newQueuedRun()
		ids[i] = run.ID
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i, run := range runs {
		want := ids[len(ids)-1-i]
		if run.ID != want {
			t.Errorf("runs[%d].ID = %s, want %s", i, run.ID, want)
		}
	}

	limited, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d runs, want 2", len(limited))
	}
	if limited[0].ID != ids[2] || limited[1].ID != ids[1] {
		t.Errorf("limited list out of order: %s, %s", limited[0].ID, limited[1].ID)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	run := newQueuedRun()

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	got.Status = "tampered"

	again, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun again: %v", err)
	}
	if again.Status != StatusQueued {
		t.Errorf("stored run mutated through returned copy: status = %q", again.Status)
	}
}
