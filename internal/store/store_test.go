package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillback/spheretrace/internal/engine"
	"github.com/quillback/spheretrace/internal/replay"
	"github.com/quillback/spheretrace/internal/sweep"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot(version int64) *sweep.Snapshot {
	return sweep.NewSnapshot(version,
		map[string]int{"Lamp": 1, "Bomb": 2},
		map[string]struct{}{"Field Chest": {}},
		&sweep.Reachability{
			Regions: map[string]sweep.RegionState{
				"Menu":      sweep.RegionReachable,
				"Overworld": sweep.RegionChecked,
				"Vault":     sweep.RegionUnreachable,
			},
			Locations: map[string]sweep.LocationState{
				"Field Chest": sweep.LocationReachable,
				"Vault Chest": sweep.LocationUnreachable,
			},
		},
	)
}

// TestOpen_Reopen: opening twice against the same file is idempotent.
func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

// TestWriteCommand_RoundTrip writes and reads back command records.
func TestWriteCommand_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	recs := []engine.CommandRecord{
		{Token: "t-1", Kind: "load_rules", Argument: "test-game", Version: 1},
		{Token: "t-2", Kind: "check_location", Argument: "Field Chest", Version: 2},
		{Token: "t-3", Kind: "check_location", Argument: "Vault Chest", Failed: true, Detail: "UNREACHABLE_LOCATION"},
	}
	for _, rec := range recs {
		require.NoError(t, s.WriteCommand(ctx, rec))
	}

	got, err := s.Commands(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	limited, err := s.Commands(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// TestWriteCommand_Idempotent: rewriting the same token is a no-op.
func TestWriteCommand_Idempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec := engine.CommandRecord{Token: "t-1", Kind: "add_item", Argument: "Lamp", Version: 1}
	require.NoError(t, s.WriteCommand(ctx, rec))

	dup := rec
	dup.Argument = "Sword"
	require.NoError(t, s.WriteCommand(ctx, dup))

	got, err := s.Commands(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Lamp", got[0].Argument, "first write wins")
}

// TestWriteSnapshot_RoundTrip reconstructs a snapshot exactly.
func TestWriteSnapshot_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	snap := sampleSnapshot(7)
	require.NoError(t, s.WriteSnapshot(ctx, snap))

	got, err := s.Snapshot(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, got.Version)
	assert.Equal(t, snap.Digest, got.Digest)
	assert.Equal(t, snap.Inventory, got.Inventory)
	assert.Equal(t, snap.CheckedLocations, got.CheckedLocations)
	assert.Equal(t, snap.Regions, got.Regions)
	assert.Equal(t, snap.Locations, got.Locations)
}

// TestLatestSnapshot returns the highest version.
func TestLatestSnapshot(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, v := range []int64{1, 3, 2} {
		require.NoError(t, s.WriteSnapshot(ctx, sampleSnapshot(v)))
	}

	got, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)

	version, err := s.LatestVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
}

// TestSnapshot_NotFound returns ErrNotFound, not a nil snapshot.
func TestSnapshot_NotFound(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Snapshot(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LatestSnapshot(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	version, err := s.LatestVersion(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
}

// TestReplayReport_RoundTrip persists and reloads the full report body.
func TestReplayReport_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	report := &replay.Report{
		Passed:  false,
		Aborted: false,
		Mismatches: []replay.Mismatch{{
			Kind:             replay.MismatchAccessible,
			Index:            "1",
			MissingFromState: []string{"Phantom Chest"},
			Inventory:        map[string]int{"Lamp": 1},
		}},
		SphereResults:   []replay.SphereResult{{Sphere: "0", Passed: true, Checked: 1}},
		ProcessedEvents: 3,
		TotalEvents:     3,
	}

	id, err := s.WriteReplayReport(ctx, report)
	require.NoError(t, err)
	require.NotZero(t, id)

	row, err := s.ReplayReport(ctx, id)
	require.NoError(t, err)
	assert.False(t, row.Report.Passed)
	require.Len(t, row.Report.Mismatches, 1)
	assert.Equal(t, []string{"Phantom Chest"}, row.Report.Mismatches[0].MissingFromState)
	assert.NotEmpty(t, row.CreatedAt)

	_, err = s.ReplayReport(ctx, id+1)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestReplayReports_NewestFirst lists reports in reverse insertion order.
func TestReplayReports_NewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.WriteReplayReport(ctx, &replay.Report{Passed: true, TotalEvents: i})
		require.NoError(t, err)
	}

	rows, err := s.ReplayReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[0].Report.TotalEvents)
	assert.Equal(t, 0, rows[2].Report.TotalEvents)

	limited, err := s.ReplayReports(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
