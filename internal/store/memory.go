package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/crawler"
)

// MemoryStore keeps runs in process memory. The server falls back to it when
// no database is configured; runs are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]*Run
	results map[uuid.UUID]*crawler.Result
	order   []uuid.UUID // creation order, oldest first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[uuid.UUID]*Run),
		results: make(map[uuid.UUID]*crawler.Result),
	}
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	s.runs[run.ID] = &cp
	s.order = append(s.order, run.ID)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Run, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.runs[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) MarkRunStarted(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = StatusRunning
	now := nowUTC()
	run.StartedAt = &now
	return nil
}

func (s *MemoryStore) CompleteRun(ctx context.Context, id uuid.UUID, status string, result *crawler.Result, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.Error = errMsg
	now := nowUTC()
	run.CompletedAt = &now
	if result != nil {
		run.DevicesFound = len(result.Devices)
		run.EdgesFound = len(result.Edges)
		run.FailureCount = len(result.Failures)
		// The engine hands the result over and never touches it again, so
		// storing the pointer is safe.
		s.results[id] = result
	}
	return nil
}

func (s *MemoryStore) GetResult(ctx context.Context, id uuid.UUID) (*crawler.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[id]; !ok {
		return nil, ErrNotFound
	}
	result, ok := s.results[id]
	if !ok {
		return nil, ErrNoResult
	}
	return result, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}
