package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/sweep"
	"github.com/quillback/spheretrace/internal/world"
)

type commandKind string

const (
	cmdLoadRules   commandKind = "load_rules"
	cmdAddItem     commandKind = "add_item"
	cmdCheck       commandKind = "check_location"
	cmdClearEvents commandKind = "clear_event_items"
	cmdRecalculate commandKind = "recalculate_accessibility"
	cmdPing        commandKind = "ping"
	cmdStaticData  commandKind = "get_static_data"
	cmdSnapshot    commandKind = "get_snapshot"
)

// command is one queued request plus its reply channel. The reply channel
// is buffered so the worker never blocks delivering a result.
type command struct {
	kind     commandKind
	token    string
	world    *world.World
	player   string
	item     string
	location string
	reply    chan result
}

type result struct {
	snap  *sweep.Snapshot
	world *world.World
	err   error
}

// CommandRecord is the journal view of one processed command.
type CommandRecord struct {
	Token    string
	Kind     string
	Argument string
	Version  int64
	Failed   bool
	Detail   string
}

// Journal persists processed commands and published snapshots.
// Implemented by store.Store; nil-able via the WithJournal option.
type Journal interface {
	WriteCommand(ctx context.Context, rec CommandRecord) error
	WriteSnapshot(ctx context.Context, snap *sweep.Snapshot) error
}

// Engine is the single-writer command pipeline. Construct with New, start
// Run in one goroutine, then submit commands from anywhere.
type Engine struct {
	registry *rules.Registry
	tokens   TokenGenerator
	clock    *Clock
	queue    *commandQueue
	journal  Journal

	// Worker-owned state: touched only inside Run.
	world     *world.World
	logic     *sweep.Logic
	player    string
	inventory map[string]int
	checked   map[string]struct{}
	reach     *sweep.Reachability
	processed int64

	// Published state: readable from any goroutine.
	latest      atomic.Pointer[sweep.Snapshot]
	latestLogic atomic.Pointer[sweep.Logic]

	subMu  sync.Mutex
	subs   map[int]*Subscription
	subSeq int
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal persists every processed command and published snapshot.
// Journal failures are logged and never fail the command itself.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithClock replaces the version clock, used to resume versions on top of
// a persisted journal.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an engine. The registry supplies rule predicates at
// LoadRules time; tokens correlate commands with events and journal rows.
func New(reg *rules.Registry, tokens TokenGenerator, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		tokens:   tokens,
		clock:    NewClock(),
		queue:    newCommandQueue(),
		subs:     make(map[int]*Subscription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the single-writer command loop and blocks until the context
// is cancelled or Stop is called.
//
// On command failure the error is delivered to the submitter, published as
// a worker-error event, and processing continues. The worker itself never
// stops over a single bad command.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		cmd, ok := e.queue.TryDequeue()
		if ok {
			e.processCommand(ctx, cmd)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.closeSubscribers()
			return ctx.Err()

		case _, ok := <-e.queue.Wait():
			// The signal coalesces, so a received token can be stale
			// when an enqueue raced a busy worker. Only a closed
			// channel with an empty queue ends the loop; a token just
			// triggers another dequeue pass.
			if !ok && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				e.closeSubscribers()
				return nil
			}
		}
	}
}

// Stop closes the command queue. Already-enqueued commands still run to
// completion before Run returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Snapshot returns the latest published snapshot, nil before the first
// LoadRules completes. Safe from any goroutine.
func (e *Engine) Snapshot() *sweep.Snapshot {
	return e.latest.Load()
}

// Logic returns the compiled world logic from the last completed
// LoadRules, nil before that. Safe from any goroutine.
func (e *Engine) Logic() *sweep.Logic {
	return e.latestLogic.Load()
}

// QueueLen returns the number of pending commands.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// LoadRules compiles the world against the predicate registry, resets all
// player state, and publishes the initial snapshot.
func (e *Engine) LoadRules(ctx context.Context, w *world.World, player string) error {
	_, err := e.submit(ctx, &command{kind: cmdLoadRules, world: w, player: player})
	return err
}

// AddItem adds one copy of the named item to the inventory.
func (e *Engine) AddItem(ctx context.Context, item string) error {
	_, err := e.submit(ctx, &command{kind: cmdAddItem, item: item})
	return err
}

// CheckLocation marks a location checked and collects its item. Fails with
// UNREACHABLE_LOCATION when the sweep reports the location not currently
// reachable; checking an already-checked location is a no-op.
func (e *Engine) CheckLocation(ctx context.Context, location string) error {
	_, err := e.submit(ctx, &command{kind: cmdCheck, location: location})
	return err
}

// ClearEventItems removes every item carrying the events group from the
// inventory.
func (e *Engine) ClearEventItems(ctx context.Context) error {
	_, err := e.submit(ctx, &command{kind: cmdClearEvents})
	return err
}

// Recalculate forces a full re-sweep and snapshot publication without any
// state mutation, for when external static data changed out of band.
func (e *Engine) Recalculate(ctx context.Context) error {
	_, err := e.submit(ctx, &command{kind: cmdRecalculate})
	return err
}

// Ping is the synchronization barrier: it returns only after every command
// enqueued before it has been fully applied and its snapshot published.
// A timeout of zero waits indefinitely.
func (e *Engine) Ping(ctx context.Context, timeout time.Duration) error {
	cmd := &command{kind: cmdPing, token: e.tokens.Generate(), reply: make(chan result, 1)}
	if !e.queue.Enqueue(cmd) {
		return &CommandError{Code: ErrCodeStopped, Message: "engine stopped", Command: string(cmdPing)}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return &CommandError{Code: ErrCodePingTimeout, Message: "ping barrier timed out", Command: string(cmdPing)}
	case res := <-cmd.reply:
		return res.err
	}
}

// StaticData returns the loaded world through the command queue, so the
// answer is ordered with respect to any pending LoadRules.
func (e *Engine) StaticData(ctx context.Context) (*world.World, error) {
	res, err := e.submit(ctx, &command{kind: cmdStaticData})
	if err != nil {
		return nil, err
	}
	return res.world, nil
}

// AwaitSnapshot returns a snapshot through the command queue, ordered
// after every previously submitted command. For an unordered read use
// Snapshot.
func (e *Engine) AwaitSnapshot(ctx context.Context) (*sweep.Snapshot, error) {
	res, err := e.submit(ctx, &command{kind: cmdSnapshot})
	if err != nil {
		return nil, err
	}
	return res.snap, nil
}

func (e *Engine) submit(ctx context.Context, cmd *command) (result, error) {
	cmd.token = e.tokens.Generate()
	cmd.reply = make(chan result, 1)
	if !e.queue.Enqueue(cmd) {
		return result{}, &CommandError{Code: ErrCodeStopped, Message: "engine stopped", Command: string(cmd.kind)}
	}
	select {
	case <-ctx.Done():
		return result{}, ctx.Err()
	case res := <-cmd.reply:
		return res, res.err
	}
}

// processCommand executes one command, journals it, delivers the reply,
// and publishes events. Called only from the Run goroutine.
func (e *Engine) processCommand(ctx context.Context, cmd *command) {
	res := e.apply(ctx, cmd)
	e.processed++

	e.journalCommand(ctx, cmd, res)

	cmd.reply <- res

	if res.err != nil {
		slog.Error("command failed",
			"command", cmd.kind,
			"token", cmd.token,
			"error", res.err,
		)
		e.publish(Event{Kind: EventWorkerError, Token: cmd.token, Err: res.err})
	} else if res.snap != nil && mutates(cmd.kind) {
		e.publish(Event{Kind: EventSnapshotUpdated, Token: cmd.token, Snapshot: res.snap})
	}
	if cmd.kind == cmdLoadRules && res.err == nil {
		e.publish(Event{Kind: EventRulesLoaded, Token: cmd.token, Game: cmd.world.Game})
	}
	e.publish(Event{
		Kind:      EventProgress,
		Token:     cmd.token,
		Processed: e.processed,
		Pending:   e.queue.Len(),
	})
}

func mutates(kind commandKind) bool {
	switch kind {
	case cmdLoadRules, cmdAddItem, cmdCheck, cmdClearEvents, cmdRecalculate:
		return true
	default:
		return false
	}
}

// apply runs the state transition for one command.
func (e *Engine) apply(ctx context.Context, cmd *command) result {
	switch cmd.kind {
	case cmdLoadRules:
		logic, err := sweep.Compile(cmd.world, e.registry)
		if err != nil {
			return result{err: &CommandError{
				Code:    ErrCodeNotLoaded,
				Message: "world compilation failed",
				Command: string(cmd.kind),
				Err:     err,
			}}
		}
		e.world = cmd.world
		e.logic = logic
		e.player = cmd.player
		e.inventory = make(map[string]int)
		e.checked = make(map[string]struct{})
		e.latestLogic.Store(logic)
		slog.Info("rules loaded",
			"game", cmd.world.Game,
			"player", cmd.player,
			"regions", len(cmd.world.Regions),
			"token", cmd.token,
		)
		return e.resweep(cmd)

	case cmdAddItem:
		if e.logic == nil {
			return result{err: notLoadedError(string(cmd.kind))}
		}
		e.inventory[cmd.item]++
		slog.Debug("item added", "item", cmd.item, "count", e.inventory[cmd.item], "token", cmd.token)
		return e.resweep(cmd)

	case cmdCheck:
		if e.logic == nil {
			return result{err: notLoadedError(string(cmd.kind))}
		}
		return e.applyCheck(cmd)

	case cmdClearEvents:
		if e.logic == nil {
			return result{err: notLoadedError(string(cmd.kind))}
		}
		for item := range e.inventory {
			if e.world.IsEventItem(e.player, item) {
				delete(e.inventory, item)
			}
		}
		return e.resweep(cmd)

	case cmdRecalculate:
		if e.logic == nil {
			return result{err: notLoadedError(string(cmd.kind))}
		}
		return e.resweep(cmd)

	case cmdPing:
		return result{snap: e.latest.Load()}

	case cmdStaticData:
		if e.world == nil {
			return result{err: notLoadedError(string(cmd.kind))}
		}
		return result{world: e.world}

	case cmdSnapshot:
		snap := e.latest.Load()
		if snap == nil {
			return result{err: notLoadedError(string(cmd.kind))}
		}
		return result{snap: snap}

	default:
		return result{err: &CommandError{
			Code:    ErrCodeStopped,
			Message: "unknown command kind",
			Command: string(cmd.kind),
		}}
	}
}

// applyCheck enforces the checked-implies-reachable invariant before
// mutating state.
func (e *Engine) applyCheck(cmd *command) result {
	loc := e.world.Location(cmd.location)
	if loc == nil {
		return result{err: &CommandError{
			Code:     ErrCodeUnknownLocation,
			Message:  "location not defined in world",
			Command:  string(cmd.kind),
			Location: cmd.location,
		}}
	}

	if _, done := e.checked[cmd.location]; done {
		return result{snap: e.latest.Load()}
	}

	if e.reach == nil || e.reach.Locations[cmd.location] != sweep.LocationReachable {
		return result{err: &CommandError{
			Code:      ErrCodeUnreachableLocation,
			Message:   "location is not currently reachable",
			Command:   string(cmd.kind),
			Location:  cmd.location,
			Region:    loc.Parent,
			Inventory: copyInventory(e.inventory),
		}}
	}

	e.checked[cmd.location] = struct{}{}
	if loc.Item != "" {
		e.inventory[loc.Item]++
	}
	slog.Debug("location checked",
		"location", cmd.location,
		"region", loc.Parent,
		"item", loc.Item,
		"token", cmd.token,
	)
	return e.resweep(cmd)
}

// resweep recomputes reachability from full state and publishes a fresh
// snapshot as the latest.
func (e *Engine) resweep(cmd *command) result {
	reach, err := e.logic.Sweep(e.inventory, e.checked)
	if err != nil {
		return result{err: &CommandError{
			Code:    ErrCodeNotLoaded,
			Message: "accessibility sweep failed",
			Command: string(cmd.kind),
			Err:     err,
		}}
	}
	e.reach = reach
	snap := sweep.NewSnapshot(e.clock.Next(), e.inventory, e.checked, reach)
	e.latest.Store(snap)
	return result{snap: snap}
}

func (e *Engine) journalCommand(ctx context.Context, cmd *command, res result) {
	if e.journal == nil {
		return
	}

	rec := CommandRecord{
		Token:    cmd.token,
		Kind:     string(cmd.kind),
		Argument: commandArgument(cmd),
		Failed:   res.err != nil,
	}
	if res.err != nil {
		rec.Detail = res.err.Error()
	}
	if res.snap != nil {
		rec.Version = res.snap.Version
	}

	// Journal failures never fail the command; the snapshot pipeline is
	// authoritative, the journal is an audit trail.
	if err := e.journal.WriteCommand(ctx, rec); err != nil {
		slog.Error("journal write failed", "token", cmd.token, "error", err)
		return
	}
	if res.err == nil && res.snap != nil && mutates(cmd.kind) {
		if err := e.journal.WriteSnapshot(ctx, res.snap); err != nil {
			slog.Error("snapshot journal write failed", "token", cmd.token, "error", err)
		}
	}
}

func commandArgument(cmd *command) string {
	switch cmd.kind {
	case cmdLoadRules:
		return cmd.world.Game
	case cmdAddItem:
		return cmd.item
	case cmdCheck:
		return cmd.location
	default:
		return ""
	}
}

func copyInventory(inv map[string]int) map[string]int {
	out := make(map[string]int, len(inv))
	for item, count := range inv {
		out[item] = count
	}
	return out
}
