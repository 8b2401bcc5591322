package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/sweep"
	"github.com/quillback/spheretrace/internal/world"
)

// testWorld: Menu -> Overworld free, Overworld -> Cave needs a Lamp found
// at Field Chest. Ignition is an event item granted by Cave Switch.
func testWorld(t *testing.T) *world.World {
	t.Helper()
	w := &world.World{
		Game:  "test-game",
		Start: "Menu",
		Regions: map[string]*world.Region{
			"Menu": {
				Exits: []*world.Exit{{Name: "Menu -> Overworld", Connected: "Overworld"}},
			},
			"Overworld": {
				Exits: []*world.Exit{{
					Name:      "Overworld -> Cave",
					Connected: "Cave",
					Rule:      rules.Call{Name: "has", Args: []rules.Arg{rules.String("Lamp")}},
				}},
				Locations: []*world.Location{{Name: "Field Chest", Item: "Lamp"}},
			},
			"Cave": {
				Locations: []*world.Location{{Name: "Cave Switch", Item: "Ignition"}},
			},
		},
		Items: map[string]map[string]world.ItemDef{
			"1": {
				"Lamp":     {Advancement: true},
				"Ignition": {Advancement: true, Groups: []string{"events"}},
			},
		},
	}
	require.NoError(t, w.Finalize())
	return w
}

// startEngine runs an engine in the background for the test's lifetime.
func startEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng := New(rules.NewRegistry(), UUIDv7Generator{}, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return eng
}

// TestEngine_LoadPublishesInitialSnapshot: LoadRules ends with a snapshot.
func TestEngine_LoadPublishesInitialSnapshot(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	snap := eng.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.Version)
	assert.True(t, snap.RegionReachable("Overworld"))
	assert.False(t, snap.RegionReachable("Cave"))
	assert.Empty(t, snap.Inventory)
}

// TestEngine_PingBarrier: after AddItem then Ping, the snapshot must
// reflect the item - nothing submitted before the ping may be pending.
func TestEngine_PingBarrier(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	require.NoError(t, eng.AddItem(ctx, "Lamp"))
	require.NoError(t, eng.Ping(ctx, time.Second))

	snap := eng.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Inventory["Lamp"])
	assert.True(t, snap.RegionReachable("Cave"))
}

// TestEngine_EnqueueBeforeRun: a command enqueued before the worker starts
// leaves its wakeup token unconsumed. The stale token must not be read as
// a closed queue; the worker stays alive and serves later commands.
func TestEngine_EnqueueBeforeRun(t *testing.T) {
	eng := New(rules.NewRegistry(), UUIDv7Generator{})
	ctx := context.Background()
	w := testWorld(t)

	loaded := make(chan error, 1)
	go func() {
		loaded <- eng.LoadRules(ctx, w, "1")
	}()
	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	require.NoError(t, <-loaded)
	require.NoError(t, eng.Ping(ctx, time.Second))

	select {
	case err := <-done:
		t.Fatalf("worker exited early: %v", err)
	default:
	}

	eng.Stop()
	require.NoError(t, <-done)
}

// TestEngine_CheckCollectsItemAndResweeps: checking Field Chest grants the
// Lamp, and the published snapshot already shows Cave reachable.
func TestEngine_CheckCollectsItemAndResweeps(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	require.NoError(t, eng.CheckLocation(ctx, "Field Chest"))

	snap := eng.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Inventory["Lamp"])
	assert.True(t, snap.Checked("Field Chest"))
	assert.True(t, snap.RegionReachable("Cave"))
	assert.Equal(t, sweep.RegionChecked, snap.Regions["Overworld"])
}

// TestEngine_CheckUnreachableFails enforces the checked-implies-reachable
// invariant with full diagnostic context.
func TestEngine_CheckUnreachableFails(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	err := eng.CheckLocation(ctx, "Cave Switch")
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Cave Switch", ce.Location)
	assert.Equal(t, "Cave", ce.Region)
	assert.NotNil(t, ce.Inventory)

	// The failed command must not have mutated state.
	snap := eng.Snapshot()
	assert.False(t, snap.Checked("Cave Switch"))
}

// TestEngine_CheckUnknownLocation is a distinct error from unreachable.
func TestEngine_CheckUnknownLocation(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	err := eng.CheckLocation(ctx, "Atlantis Chest")
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnknownLocation, ErrorCode(err))
}

// TestEngine_CheckTwiceIsNoop: a repeated check neither fails nor doubles
// the collected item.
func TestEngine_CheckTwiceIsNoop(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	require.NoError(t, eng.CheckLocation(ctx, "Field Chest"))
	require.NoError(t, eng.CheckLocation(ctx, "Field Chest"))

	snap := eng.Snapshot()
	assert.Equal(t, 1, snap.Inventory["Lamp"])
}

// TestEngine_NotLoaded: commands before LoadRules fail with NOT_LOADED.
func TestEngine_NotLoaded(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()

	assert.Equal(t, ErrCodeNotLoaded, ErrorCode(eng.AddItem(ctx, "Lamp")))
	assert.Equal(t, ErrCodeNotLoaded, ErrorCode(eng.CheckLocation(ctx, "Field Chest")))
	assert.Equal(t, ErrCodeNotLoaded, ErrorCode(eng.Recalculate(ctx)))
	_, err := eng.StaticData(ctx)
	assert.Equal(t, ErrCodeNotLoaded, ErrorCode(err))
	_, err = eng.AwaitSnapshot(ctx)
	assert.Equal(t, ErrCodeNotLoaded, ErrorCode(err))
}

// TestEngine_ClearEventItems removes only items in the events group.
func TestEngine_ClearEventItems(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	require.NoError(t, eng.CheckLocation(ctx, "Field Chest"))
	require.NoError(t, eng.CheckLocation(ctx, "Cave Switch"))

	snap := eng.Snapshot()
	assert.Equal(t, 1, snap.Inventory["Ignition"])

	require.NoError(t, eng.ClearEventItems(ctx))

	snap = eng.Snapshot()
	assert.Zero(t, snap.Inventory["Ignition"])
	assert.Equal(t, 1, snap.Inventory["Lamp"], "non-event items survive")
	assert.True(t, snap.Checked("Cave Switch"), "checks survive")
}

// TestEngine_SnapshotImmutableAcrossCommands: a held snapshot never
// changes when later commands run.
func TestEngine_SnapshotImmutableAcrossCommands(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	before := eng.Snapshot()
	require.NoError(t, eng.AddItem(ctx, "Lamp"))
	after := eng.Snapshot()

	assert.Zero(t, before.Inventory["Lamp"])
	assert.Equal(t, 1, after.Inventory["Lamp"])
	assert.Greater(t, after.Version, before.Version)
	assert.NotEqual(t, before.Digest, after.Digest)
}

// TestEngine_StaticData returns the loaded world through the queue.
func TestEngine_StaticData(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	w := testWorld(t)
	require.NoError(t, eng.LoadRules(ctx, w, "1"))

	got, err := eng.StaticData(ctx)
	require.NoError(t, err)
	assert.Same(t, w, got)
}

// TestEngine_ReloadResetsState: LoadRules wipes inventory and checks.
func TestEngine_ReloadResetsState(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))
	require.NoError(t, eng.CheckLocation(ctx, "Field Chest"))

	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	snap := eng.Snapshot()
	assert.Empty(t, snap.Inventory)
	assert.Empty(t, snap.CheckedLocations)
	assert.False(t, snap.RegionReachable("Cave"))
}

// TestEngine_Subscribe delivers rules-loaded and snapshot-updated events
// and stops after Unsubscribe.
func TestEngine_Subscribe(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()

	sub := eng.Subscribe(16)
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))
	require.NoError(t, eng.AddItem(ctx, "Lamp"))
	require.NoError(t, eng.Ping(ctx, time.Second))

	var kinds []EventKind
	timeout := time.After(time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-sub.C:
			if ev.Kind == EventSnapshotUpdated || ev.Kind == EventRulesLoaded {
				kinds = append(kinds, ev.Kind)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", kinds)
		}
	}
	assert.Contains(t, kinds, EventRulesLoaded)
	assert.Contains(t, kinds, EventSnapshotUpdated)

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
}

// TestEngine_WorkerErrorEvent publishes failures to observers.
func TestEngine_WorkerErrorEvent(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	sub := eng.Subscribe(16)
	defer sub.Unsubscribe()

	require.Error(t, eng.CheckLocation(ctx, "Cave Switch"))

	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Kind == EventWorkerError {
				assert.True(t, IsUnreachable(ev.Err))
				return
			}
		case <-timeout:
			t.Fatal("no worker-error event received")
		}
	}
}

// TestEngine_StoppedRejectsCommands: submissions after Stop fail fast.
func TestEngine_StoppedRejectsCommands(t *testing.T) {
	eng := New(rules.NewRegistry(), UUIDv7Generator{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(context.Background())
	}()
	eng.Stop()
	<-done

	err := eng.AddItem(context.Background(), "Lamp")
	assert.Equal(t, ErrCodeStopped, ErrorCode(err))
	assert.Equal(t, ErrCodeStopped, ErrorCode(eng.Ping(context.Background(), time.Second)))
}

// TestEngine_VersionsStrictlyIncrease across mutating commands.
func TestEngine_VersionsStrictlyIncrease(t *testing.T) {
	eng := startEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.LoadRules(ctx, testWorld(t), "1"))

	var last int64
	for _, item := range []string{"A", "B", "C"} {
		require.NoError(t, eng.AddItem(ctx, item))
		snap := eng.Snapshot()
		assert.Greater(t, snap.Version, last)
		last = snap.Version
	}
}
