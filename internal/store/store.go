// Package store persists crawl runs and their results. Two implementations
// exist: PostgresStore for the server and MemoryStore for one-shot CLI use
// and tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/crawler"
)

// ErrNotFound is returned when no run exists under the requested id.
var ErrNotFound = errors.New("run not found")

// Run lifecycle statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial" // canceled mid-run, result kept
	StatusFailed    = "failed"
)

// Run is the persisted record of one crawl.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	Seeds        []string   `json:"seeds"`
	MaxHops      int        `json:"max_hops"`
	Commands     []string   `json:"commands,omitempty"`
	DevicesFound int        `json:"devices_found"`
	EdgesFound   int        `json:"edges_found"`
	FailureCount int        `json:"failure_count"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Store is the persistence contract shared by the API handlers and the
// crawl worker.
type Store interface {
	// CreateRun records a new run in status queued.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun returns the run record, or ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)

	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// MarkRunStarted moves a run to status running and stamps started_at.
	MarkRunStarted(ctx context.Context, id uuid.UUID) error

	// CompleteRun stores the final status, counters and, when the run got far
	// enough to produce one, the full result graph.
	CompleteRun(ctx context.Context, id uuid.UUID, status string, result *crawler.Result, errMsg string) error

	// GetResult reconstructs the stored result graph, or ErrNotFound. Runs
	// that finished without a result yield ErrNoResult.
	GetResult(ctx context.Context, id uuid.UUID) (*crawler.Result, error)

	// Ping reports whether the backing storage is usable.
	Ping(ctx context.Context) error

	Close()
}

// ErrNoResult is returned for runs that exist but never produced a result,
// for example when the request was rejected before any device was visited.
var ErrNoResult = errors.New("run has no result")

const defaultListLimit = 100

func nowUTC() time.Time { return time.Now().UTC() }
