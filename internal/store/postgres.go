package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"

	"github.com/topocrawl/topocrawl/internal/crawler"
)

// PostgresStore persists runs in PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects, verifies the connection and applies any pending
// migrations before returning.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "Database connected, migrations applied")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// runMigrations applies the embedded SQL migrations. goose needs a
// database/sql handle, so a short-lived one is opened beside the pool.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(EmbeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crawl_runs (id, status, seeds, max_hops, commands, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Status, run.Seeds, run.MaxHops, run.Commands, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, status, seeds, max_hops, commands, devices_found,
	edges_found, failure_count, error, created_at, started_at, completed_at`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(
		&run.ID, &run.Status, &run.Seeds, &run.MaxHops, &run.Commands,
		&run.DevicesFound, &run.EdgesFound, &run.FailureCount, &run.Error,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM crawl_runs WHERE id = $1`, id)
	return scanRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM crawl_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) MarkRunStarted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE crawl_runs SET status = $2, started_at = now() WHERE id = $1`,
		id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id uuid.UUID, status string, result *crawler.Result, errMsg string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var devices, edges, failures int
	if result != nil {
		devices, edges, failures = len(result.Devices), len(result.Edges), len(result.Failures)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE crawl_runs
		SET status = $2, devices_found = $3, edges_found = $4, failure_count = $5,
		    error = $6, completed_at = now()
		WHERE id = $1`,
		id, status, devices, edges, failures, errMsg,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if result != nil {
		if err := insertResult(ctx, tx, id, result); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertResult(ctx context.Context, tx pgx.Tx, id uuid.UUID, result *crawler.Result) error {
	for _, dev := range result.All() {
		_, err := tx.Exec(ctx, `
			INSERT INTO crawl_devices
				(run_id, device_id, hostname, platform, mgmt_addr, hop, status,
				 discovered_via, credential, sys_descr)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, dev.ID, dev.Hostname, dev.Platform, dev.MgmtAddr, dev.Hop,
			string(dev.Status), dev.DiscoveredVia, dev.Credential, dev.SysDescr,
		)
		if err != nil {
			return fmt.Errorf("insert device %s: %w", dev.ID, err)
		}
	}

	for i, edge := range result.Edges {
		_, err := tx.Exec(ctx, `
			INSERT INTO crawl_edges
				(run_id, position, local_id, local_interface, remote_id,
				 remote_interface, protocols)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, i, edge.LocalID, edge.LocalInterface, edge.RemoteID,
			edge.RemoteInterface, edge.Protocols,
		)
		if err != nil {
			return fmt.Errorf("insert edge %d: %w", i, err)
		}
	}

	for i, failure := range result.Failures {
		_, err := tx.Exec(ctx, `
			INSERT INTO crawl_failures (run_id, position, device_id, kind, detail)
			VALUES ($1, $2, $3, $4, $5)`,
			id, i, failure.DeviceID, string(failure.Kind), failure.Detail,
		)
		if err != nil {
			return fmt.Errorf("insert failure %d: %w", i, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetResult(ctx context.Context, id uuid.UUID) (*crawler.Result, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &crawler.Result{
		RunID:   run.ID,
		Seeds:   run.Seeds,
		MaxHops: run.MaxHops,
		Devices: make(map[string]*crawler.Device),
	}
	if run.StartedAt != nil {
		result.StartedAt = *run.StartedAt
	}
	if run.CompletedAt != nil {
		result.CompletedAt = *run.CompletedAt
	}

	rows, err := s.pool.Query(ctx, `
		SELECT device_id, hostname, platform, mgmt_addr, hop, status,
		       discovered_via, credential, sys_descr
		FROM crawl_devices WHERE run_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dev crawler.Device
		var status string
		if err := rows.Scan(&dev.ID, &dev.Hostname, &dev.Platform, &dev.MgmtAddr,
			&dev.Hop, &status, &dev.DiscoveredVia, &dev.Credential, &dev.SysDescr); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		dev.Status = crawler.Status(status)
		result.Devices[dev.ID] = &dev
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := s.pool.Query(ctx, `
		SELECT local_id, local_interface, remote_id, remote_interface, protocols
		FROM crawl_edges WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var edge crawler.Edge
		if err := edgeRows.Scan(&edge.LocalID, &edge.LocalInterface,
			&edge.RemoteID, &edge.RemoteInterface, &edge.Protocols); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		result.Edges = append(result.Edges, edge)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	failureRows, err := s.pool.Query(ctx, `
		SELECT device_id, kind, detail
		FROM crawl_failures WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer failureRows.Close()
	for failureRows.Next() {
		var failure crawler.Failure
		var kind string
		if err := failureRows.Scan(&failure.DeviceID, &kind, &failure.Detail); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		failure.Kind = crawler.FailureKind(kind)
		result.Failures = append(result.Failures, failure)
	}
	if err := failureRows.Err(); err != nil {
		return nil, err
	}

	// Every stored result carries at least one device entry (seeds are
	// recorded even when unreachable), so an empty graph means the run has
	// not produced a result yet.
	if len(result.Devices) == 0 {
		return nil, ErrNoResult
	}
	return result, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
