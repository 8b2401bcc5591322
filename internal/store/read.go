package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quillback/spheretrace/internal/engine"
	"github.com/quillback/spheretrace/internal/replay"
	"github.com/quillback/spheretrace/internal/sweep"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Commands returns journaled commands ordered by insertion, newest last.
// A limit of 0 returns everything.
func (s *Store) Commands(ctx context.Context, limit int) ([]engine.CommandRecord, error) {
	query := `
		SELECT token, kind, argument, version, failed, detail
		FROM commands ORDER BY rowid
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	defer rows.Close()

	var records []engine.CommandRecord
	for rows.Next() {
		var rec engine.CommandRecord
		var failed int
		if err := rows.Scan(&rec.Token, &rec.Kind, &rec.Argument, &rec.Version, &failed, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		rec.Failed = failed != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Snapshot reconstructs one journaled snapshot by version.
func (s *Store) Snapshot(ctx context.Context, version int64) (*sweep.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, digest, inventory, checked_locations, regions, locations
		FROM snapshots WHERE version = ?
	`, version)
	return scanSnapshot(row)
}

// LatestSnapshot reconstructs the highest-versioned journaled snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (*sweep.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, digest, inventory, checked_locations, regions, locations
		FROM snapshots ORDER BY version DESC LIMIT 1
	`)
	return scanSnapshot(row)
}

// LatestVersion returns the highest journaled snapshot version, 0 when the
// journal is empty. Used to resume the engine clock after a restart.
func (s *Store) LatestVersion(ctx context.Context) (int64, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM snapshots`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read latest version: %w", err)
	}
	return version.Int64, nil
}

func scanSnapshot(row *sql.Row) (*sweep.Snapshot, error) {
	var snap sweep.Snapshot
	var inventory, checked, regions, locations string
	err := row.Scan(&snap.Version, &snap.Digest, &inventory, &checked, &regions, &locations)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(inventory), &snap.Inventory); err != nil {
		return nil, fmt.Errorf("decode snapshot inventory: %w", err)
	}
	var checkedList []string
	if err := json.Unmarshal([]byte(checked), &checkedList); err != nil {
		return nil, fmt.Errorf("decode snapshot checked locations: %w", err)
	}
	snap.CheckedLocations = make(map[string]struct{}, len(checkedList))
	for _, loc := range checkedList {
		snap.CheckedLocations[loc] = struct{}{}
	}
	if err := json.Unmarshal([]byte(regions), &snap.Regions); err != nil {
		return nil, fmt.Errorf("decode snapshot regions: %w", err)
	}
	if err := json.Unmarshal([]byte(locations), &snap.Locations); err != nil {
		return nil, fmt.Errorf("decode snapshot locations: %w", err)
	}
	return &snap, nil
}

// ReplayReportRow is one persisted replay outcome.
type ReplayReportRow struct {
	ID        int64
	CreatedAt string
	Report    replay.Report
}

// ReplayReport loads one persisted report by id.
func (s *Store) ReplayReport(ctx context.Context, id int64) (*ReplayReportRow, error) {
	var row ReplayReportRow
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, report FROM replay_reports WHERE id = ?
	`, id).Scan(&row.ID, &row.CreatedAt, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read replay report %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(body), &row.Report); err != nil {
		return nil, fmt.Errorf("decode replay report %d: %w", id, err)
	}
	return &row, nil
}

// ReplayReports lists persisted reports, newest first.
func (s *Store) ReplayReports(ctx context.Context, limit int) ([]ReplayReportRow, error) {
	query := `SELECT id, created_at, report FROM replay_reports ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read replay reports: %w", err)
	}
	defer rows.Close()

	var out []ReplayReportRow
	for rows.Next() {
		var row ReplayReportRow
		var body string
		if err := rows.Scan(&row.ID, &row.CreatedAt, &body); err != nil {
			return nil, fmt.Errorf("scan replay report: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &row.Report); err != nil {
			return nil, fmt.Errorf("decode replay report %d: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
