// Package engine owns the wearable's live match. A single run loop
// serializes every mutation - referee actions and clock ticks alike -
// so a tick can never interleave with a goal or a phase change.
// Persistence and snapshot publishing are dispatched asynchronously
// off that loop so slow storage or a slow channel cannot skew clock
// granularity.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/models"
	"github.com/githubbar/refwatch/internal/phase"
)

const (
	tickInterval = 250 * time.Millisecond
	// Live snapshots go out every publishEveryTicks ticks while the
	// clock runs; every referee action publishes immediately.
	publishEveryTicks = 20

	persistQueueSize = 16
	subscriberBuffer = 8
	actionQueueSize  = 16
)

// ErrMatchNotFinished is reported to a FinishAndSync callback when the
// match is not in a terminal phase yet.
var ErrMatchNotFinished = fmt.Errorf("match is not in a terminal phase")

type persistOp struct {
	active  *models.Match
	replace []models.Match
	upsert  *models.Match
}

// Engine runs the clock and the phase state machine for the active
// match and exposes the referee action API. Construct with New, then
// Start; all exported methods are safe for concurrent use.
type Engine struct {
	clock     clockwork.Clock
	store     Store
	publisher SnapshotPublisher
	feedback  Feedback

	actions   chan func()
	persistCh chan persistOp
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool

	// run-loop-owned state; never touched outside the loop
	match           models.Match
	known           map[uuid.UUID]models.Match
	ticker          clockwork.Ticker
	startInstant    time.Time
	baseElapsed     time.Duration
	expiryFired     bool
	kickOffSelected bool
	ticksToPublish  int

	// read-side copies, refreshed on every commit
	snapMu    sync.RWMutex
	lastSnap  models.Match
	knownSnap []models.Match

	subMu   sync.Mutex
	subs    map[int]chan models.Match
	nextSub int
}

// New creates an engine. Nil store, publisher or feedback fall back to
// no-op implementations; clock is usually clockwork.NewRealClock and a
// fake clock in tests.
func New(clock clockwork.Clock, store Store, publisher SnapshotPublisher, feedback Feedback) *Engine {
	if store == nil {
		store = nopStore{}
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if feedback == nil {
		feedback = LogFeedback{}
	}
	return &Engine{
		clock:     clock,
		store:     store,
		publisher: publisher,
		feedback:  feedback,
		actions:   make(chan func(), actionQueueSize),
		persistCh: make(chan persistOp, persistQueueSize),
		stopCh:    make(chan struct{}),
		known:     make(map[uuid.UUID]models.Match),
		subs:      make(map[int]chan models.Match),
	}
}

// Start restores persisted state and launches the run loop. If the
// persisted match was running, the clock resumes from the persisted
// elapsed value with a fresh start instant, so wall-clock time that
// passed while the process was down is not double-counted.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	if err := e.restore(ctx); err != nil {
		return fmt.Errorf("restore engine state: %w", err)
	}

	e.wg.Add(2)
	go e.run(ctx)
	go e.persistLoop(ctx)

	log.Info().
		Str("match_id", e.match.ID.String()).
		Str("phase", string(e.match.Phase)).
		Bool("running", e.match.Running).
		Msg("match engine started")
	return nil
}

// Stop shuts the run loop down and stops any active ticker.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	log.Info().Msg("match engine stopped")
}

func (e *Engine) restore(ctx context.Context) error {
	active, err := e.store.LoadActive(ctx)
	if err != nil {
		return err
	}
	if active != nil {
		e.match = active.Clone()
	} else {
		e.match = models.NewDefaultMatch(uuid.New())
	}
	if e.match.Running {
		// Resume ticking from the persisted elapsed baseline.
		e.baseElapsed = e.match.Elapsed()
		e.startInstant = e.clock.Now()
		e.ticker = e.clock.NewTicker(tickInterval)
		reg := phase.RegulationFor(e.match.Phase, e.match.Config)
		e.expiryFired = reg > 0 && e.baseElapsed >= reg
		log.Info().
			Str("match_id", e.match.ID.String()).
			Dur("elapsed", e.baseElapsed).
			Msg("resumed running clock from persisted state")
	}

	known, err := e.store.ListKnown(ctx)
	if err != nil {
		return err
	}
	for _, m := range known {
		e.known[m.ID] = m
	}
	e.refreshReadCopies()
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		var tickCh <-chan time.Time
		if e.ticker != nil {
			tickCh = e.ticker.Chan()
		}
		select {
		case <-ctx.Done():
			e.shutdownClock()
			return
		case <-e.stopCh:
			e.shutdownClock()
			return
		case fn := <-e.actions:
			fn()
		case <-tickCh:
			e.onTick()
		}
	}
}

func (e *Engine) shutdownClock() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

// do runs fn on the run loop and returns the resulting snapshot. fn
// reports whether it mutated the match; a no-op leaves LastUpdated and
// the event log untouched.
func (e *Engine) do(fn func() bool) models.Match {
	res := make(chan models.Match, 1)
	select {
	case e.actions <- func() {
		if fn() {
			e.commit(true)
		}
		snap := e.match.Clone()
		// The elapsed value in a returned snapshot is always current,
		// even between ticks.
		snap.ElapsedInPhaseMillis = int64(e.currentElapsed() / time.Millisecond)
		res <- snap
	}:
	case <-e.stopCh:
		return e.Snapshot()
	}
	select {
	case m := <-res:
		return m
	case <-e.stopCh:
		return e.Snapshot()
	}
}

func (e *Engine) onTick() {
	if !e.match.Running {
		return
	}
	e.match.ElapsedInPhaseMillis = int64(e.currentElapsed() / time.Millisecond)
	e.match.LastUpdated = e.clock.Now().UTC()
	e.checkExpiry()
	e.refreshReadCopies()
	e.notifySubscribers()
	e.enqueuePersist(persistOp{active: clonePtr(e.match)})

	e.ticksToPublish--
	if e.ticksToPublish <= 0 {
		e.ticksToPublish = publishEveryTicks
		e.publisher.PublishSnapshot(e.match.Clone())
	}
}

// commit finishes a mutation: stamps elapsed and LastUpdated, notifies
// subscribers, queues the persistence write and (optionally) publishes.
func (e *Engine) commit(publish bool) {
	e.match.ElapsedInPhaseMillis = int64(e.currentElapsed() / time.Millisecond)
	e.match.LastUpdated = e.clock.Now().UTC()
	e.checkExpiry()
	e.refreshReadCopies()
	e.notifySubscribers()
	e.enqueuePersist(persistOp{active: clonePtr(e.match)})
	if publish {
		e.publisher.PublishSnapshot(e.match.Clone())
	}
}

// currentElapsed recomputes elapsed time from the start instant rather
// than accumulating tick deltas, so missed ticks during a suspend do
// not cause drift.
func (e *Engine) currentElapsed() time.Duration {
	if !e.match.Running {
		return e.match.Elapsed()
	}
	return e.baseElapsed + e.clock.Since(e.startInstant)
}

func (e *Engine) checkExpiry() {
	if e.expiryFired {
		return
	}
	reg := phase.RegulationFor(e.match.Phase, e.match.Config)
	if reg <= 0 || e.currentElapsed() < reg {
		return
	}
	e.expiryFired = true
	p := e.match.Phase
	// Feedback is best-effort and must not stall the loop.
	go e.feedback.EndOfRegulation(p)
}

func (e *Engine) startClock() {
	if e.match.Running {
		return
	}
	e.baseElapsed = e.match.Elapsed()
	e.startInstant = e.clock.Now()
	e.ticker = e.clock.NewTicker(tickInterval)
	e.ticksToPublish = publishEveryTicks
	e.match.Running = true
}

func (e *Engine) stopClock() {
	if !e.match.Running {
		return
	}
	e.match.ElapsedInPhaseMillis = int64(e.currentElapsed() / time.Millisecond)
	e.match.Running = false
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) matchClockMillis() int64 {
	return int64(e.currentElapsed() / time.Millisecond)
}

func (e *Engine) appendEvent(ev models.Event) {
	ev.ID = uuid.New()
	ev.WallClock = e.clock.Now().UTC()
	e.match.Events = append(e.match.Events, ev)
}

// transitionTo moves the match into next, applying the fixed ordering:
// stop the old clock, note how the old phase ended, append the
// PhaseChanged event, reset elapsed, then auto-start break clocks.
func (e *Engine) transitionTo(next models.Phase) {
	old := e.match.Phase
	elapsed := e.currentElapsed()
	e.stopClock()

	if phase.HasDuration(old) {
		reg := phase.RegulationFor(old, e.match.Config)
		msg := fmt.Sprintf("%s ended early (%s)", old.Label(), models.FormatClock(elapsed))
		if reg > 0 && elapsed >= reg {
			msg = fmt.Sprintf("%s ended (%s)", old.Label(), models.FormatClock(elapsed))
		}
		e.appendEvent(models.Event{
			Type:             models.EventNote,
			MatchClockMillis: int64(elapsed / time.Millisecond),
			Message:          msg,
		})
	}

	e.appendEvent(models.Event{
		Type:     models.EventPhaseChange,
		NewPhase: next,
	})

	e.match.Phase = next
	e.match.ElapsedInPhaseMillis = 0
	e.baseElapsed = 0
	e.expiryFired = false

	if old == models.PhasePreGame && e.match.Status == models.MatchStatusScheduled {
		e.match.Status = models.MatchStatusInProgress
	}
	if phase.FlipsKickOff(next) && !e.kickOffSelected {
		e.match.KickOffTeam = e.match.KickOffTeam.Opponent()
	}
	e.kickOffSelected = false

	if phase.AutoStartsClock(next) {
		e.startClock()
	}
}

func (e *Engine) teamName(side models.TeamSide) string {
	if side == models.TeamHome {
		return e.match.Config.Home.Name
	}
	return e.match.Config.Away.Name
}

func clonePtr(m models.Match) *models.Match {
	c := m.Clone()
	return &c
}

// Snapshot returns a copy of the current match, refreshed on every
// mutation and tick.
func (e *Engine) Snapshot() models.Match {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.lastSnap.Clone()
}

// KnownMatches returns the cached list of scheduled and completed
// matches, most recently updated first.
func (e *Engine) KnownMatches() []models.Match {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	out := make([]models.Match, len(e.knownSnap))
	for i, m := range e.knownSnap {
		out[i] = m.Clone()
	}
	return out
}

func (e *Engine) refreshReadCopies() {
	list := make([]models.Match, 0, len(e.known))
	for _, m := range e.known {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastUpdated.After(list[j].LastUpdated)
	})
	e.snapMu.Lock()
	e.lastSnap = e.match.Clone()
	e.knownSnap = list
	e.snapMu.Unlock()
}

// Subscribe registers an observer of match snapshots. The returned
// cancel func must be called when the observer detaches. Slow
// observers miss intermediate snapshots rather than block the loop.
func (e *Engine) Subscribe() (<-chan models.Match, func()) {
	ch := make(chan models.Match, subscriberBuffer)
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()
	cancel := func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) notifySubscribers() {
	snap := e.match.Clone()
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (e *Engine) enqueuePersist(op persistOp) {
	select {
	case e.persistCh <- op:
	default:
		// Queue full: drop this write, the next one supersedes it.
		log.Debug().Msg("persist queue full, dropping write")
	}
}

func (e *Engine) persistLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case op := <-e.persistCh:
			e.applyPersist(ctx, op)
		}
	}
}

func (e *Engine) applyPersist(ctx context.Context, op persistOp) {
	if op.active != nil {
		if err := e.store.SaveActive(ctx, *op.active); err != nil {
			log.Warn().Err(err).Msg("failed to persist active match")
		}
	}
	if op.replace != nil {
		if err := e.store.ReplaceKnown(ctx, op.replace); err != nil {
			log.Warn().Err(err).Msg("failed to persist known matches")
		}
	}
	if op.upsert != nil {
		if err := e.store.UpsertKnown(ctx, *op.upsert); err != nil {
			log.Warn().Err(err).Msg("failed to persist completed match")
		}
	}
}
