package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quillback/spheretrace/internal/engine"
	"github.com/quillback/spheretrace/internal/replay"
	"github.com/quillback/spheretrace/internal/sweep"
)

// WriteCommand journals one processed command. Idempotent on token:
// a duplicate write is silently ignored.
func (s *Store) WriteCommand(ctx context.Context, rec engine.CommandRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (token, kind, argument, version, failed, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		rec.Token, rec.Kind, rec.Argument, rec.Version, boolInt(rec.Failed), rec.Detail,
	)
	if err != nil {
		return fmt.Errorf("write command %s: %w", rec.Token, err)
	}
	return nil
}

// WriteSnapshot journals a published snapshot. Idempotent on version.
func (s *Store) WriteSnapshot(ctx context.Context, snap *sweep.Snapshot) error {
	inventory, err := json.Marshal(snap.Inventory)
	if err != nil {
		return fmt.Errorf("write snapshot %d: %w", snap.Version, err)
	}

	checked := make([]string, 0, len(snap.CheckedLocations))
	for loc := range snap.CheckedLocations {
		checked = append(checked, loc)
	}
	checkedJSON, err := json.Marshal(checked)
	if err != nil {
		return fmt.Errorf("write snapshot %d: %w", snap.Version, err)
	}

	regions, err := json.Marshal(snap.Regions)
	if err != nil {
		return fmt.Errorf("write snapshot %d: %w", snap.Version, err)
	}
	locations, err := json.Marshal(snap.Locations)
	if err != nil {
		return fmt.Errorf("write snapshot %d: %w", snap.Version, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (version, digest, inventory, checked_locations, regions, locations)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(version) DO NOTHING
	`,
		snap.Version, snap.Digest, string(inventory), string(checkedJSON),
		string(regions), string(locations),
	)
	if err != nil {
		return fmt.Errorf("write snapshot %d: %w", snap.Version, err)
	}
	return nil
}

// WriteReplayReport persists a replay outcome with its full JSON body.
// Returns the report's row id.
func (s *Store) WriteReplayReport(ctx context.Context, report *replay.Report) (int64, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("write replay report: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_reports (passed, aborted, mismatches, processed_events, total_events, report)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		boolInt(report.Passed), boolInt(report.Aborted), len(report.Mismatches),
		report.ProcessedEvents, report.TotalEvents, string(body),
	)
	if err != nil {
		return 0, fmt.Errorf("write replay report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write replay report: %w", err)
	}
	return id, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
