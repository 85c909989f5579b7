package menutree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/models"
)

// State is a step of the per-gesture state machine.
type State int

// Gesture states. Rejected, Accepted, Failed and Succeeded are transient and
// always followed by another transition before the engine lock is released
// for good.
const (
	StateIdle State = iota
	StateDragging
	StateDropped
	StateValidating
	StateRejected
	StateAccepted
	StateDispatching
	StateFailed
	StateSucceeded
	StateRebuilding
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateDragging:    "dragging",
	StateDropped:     "dropped",
	StateValidating:  "validating",
	StateRejected:    "rejected",
	StateAccepted:    "accepted",
	StateDispatching: "dispatching",
	StateFailed:      "failed",
	StateSucceeded:   "succeeded",
	StateRebuilding:  "rebuilding",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// busy reports whether a move is in flight.
func (s State) busy() bool {
	return s == StateDispatching || s == StateRebuilding
}

// RecordStore is the authoritative source of menu records.
type RecordStore interface {
	FetchAll(ctx context.Context) ([]models.MenuRecord, error)
	ApplyOrder(ctx context.Context, ops []models.MoveOp) error
}

// Snapshot is an immutable view of the last applied rebuild.
type Snapshot struct {
	Seq       uint64
	Forest    Forest
	Anomalies []models.Anomaly
	Records   []models.MenuRecord
	BuiltAt   time.Time
}

// MoveStatus is the outcome of a move request.
type MoveStatus string

// Move outcomes.
const (
	MoveApplied  MoveStatus = "applied"
	MoveRejected MoveStatus = "rejected"
	MoveFailed   MoveStatus = "failed"
	MoveNoOp     MoveStatus = "no-op"
)

// MoveResult describes what happened to a move request.
type MoveResult struct {
	Status   MoveStatus      `json:"status"`
	Relation Relation        `json:"relation"`
	Ops      []models.MoveOp `json:"ops,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	// Seq is the snapshot sequence number current after the move.
	Seq uint64 `json:"seq"`
}

// Observer is notified about engine activity. StateChanged is called with the
// engine lock held and must not call back into the Engine.
type Observer interface {
	StateChanged(from, to State)
	Rebuilt(snap Snapshot)
	RebuildDiscarded(seq uint64)
	RebuildFailed(seq uint64, err error)
	MoveFinished(res MoveResult, err error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithDispatchTimeout bounds each record store round trip.
func WithDispatchTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

var errStale = errors.New("menutree: rebuild superseded by a newer request")

// Engine owns the rendered forest and runs the validate, dispatch and rebuild
// pipeline for moves. Only one move may be in flight; the forest is replaced
// as a whole on every successful rebuild and is never patched in place.
type Engine struct {
	store     RecordStore
	logger    *slog.Logger
	timeout   time.Duration
	observers []Observer

	mu         sync.Mutex
	state      State
	dragSource int64
	issued     uint64
	snap       Snapshot
}

// NewEngine creates an engine over store. Call Refresh to load the first forest.
func NewEngine(store RecordStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
		snap:    Snapshot{Forest: Forest{}, Anomalies: []models.Anomaly{}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot returns the current forest view. Callers must treat it as read-only.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Forest returns the current forest.
func (e *Engine) Forest() Forest {
	return e.Snapshot().Forest
}

// Anomalies returns the records that could not be placed as declared.
func (e *Engine) Anomalies() []models.Anomaly {
	return e.Snapshot().Anomalies
}

// State returns the current gesture state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Refresh refetches all records and rebuilds the forest. A reply overtaken by
// a newer refresh is dropped silently.
func (e *Engine) Refresh(ctx context.Context) error {
	if err := e.rebuild(ctx); err != nil && !errors.Is(err, errStale) {
		return err
	}
	return nil
}

// BeginDrag starts a gesture on sourceID.
func (e *Engine) BeginDrag(sourceID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.busy() {
		return apperr.ErrBusy
	}
	if sourceID == VirtualRoot {
		return fmt.Errorf("%w: the top-level container cannot be dragged", apperr.ErrInvalidMove)
	}
	if e.snap.Forest.Find(sourceID) == nil {
		return fmt.Errorf("%w: menu %d", apperr.ErrNotFound, sourceID)
	}
	e.dragSource = sourceID
	e.setState(StateDragging)
	return nil
}

// CancelDrag abandons a gesture that has not been dropped yet.
func (e *Engine) CancelDrag() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDragging {
		e.dragSource = 0
		e.setState(StateIdle)
	}
}

// Drop finishes the gesture started by BeginDrag: the pointer geometry is
// interpreted into a relation and the resulting move is executed.
func (e *Engine) Drop(ctx context.Context, targetID int64, offset, height float64) (MoveResult, error) {
	e.mu.Lock()
	if e.state != StateDragging {
		e.mu.Unlock()
		return MoveResult{}, fmt.Errorf("%w: no drag in progress", apperr.ErrInvalidMove)
	}
	sourceID := e.dragSource
	e.dragSource = 0
	e.setState(StateDropped)

	rel, err := Interpret(Gesture{SourceID: sourceID, TargetID: targetID, Offset: offset, Height: height})
	if err != nil {
		e.setState(StateIdle)
		e.mu.Unlock()
		return MoveResult{Status: MoveRejected, Reason: err.Error()}, err
	}
	return e.execute(ctx, sourceID, targetID, rel)
}

// RequestMove runs the full validate, dispatch and rebuild pipeline for an
// already interpreted relation. targetID is VirtualRoot for "top level".
func (e *Engine) RequestMove(ctx context.Context, sourceID, targetID int64, rel Relation) (MoveResult, error) {
	e.mu.Lock()
	if e.state.busy() {
		e.mu.Unlock()
		return MoveResult{}, apperr.ErrBusy
	}
	e.dragSource = 0
	e.setState(StateDropped)
	return e.execute(ctx, sourceID, targetID, rel)
}

// execute is entered with e.mu held and the state at StateDropped.
func (e *Engine) execute(ctx context.Context, sourceID, targetID int64, rel Relation) (MoveResult, error) {
	res := MoveResult{Relation: rel, Seq: e.snap.Seq}

	if rel == RelationNoOp {
		e.setState(StateIdle)
		e.mu.Unlock()
		res.Status, res.Relation = MoveNoOp, RelationNoOp
		e.finish(res, nil)
		return res, nil
	}

	e.setState(StateValidating)
	plan, err := PlanMove(e.snap.Records, sourceID, targetID, rel)
	if err != nil {
		e.setState(StateRejected)
		e.setState(StateIdle)
		e.mu.Unlock()
		res.Status, res.Reason = MoveRejected, err.Error()
		e.logger.Info("move rejected",
			slog.Int64("source_id", sourceID),
			slog.Int64("target_id", targetID),
			slog.String("relation", string(rel)),
			slog.String("reason", err.Error()))
		e.finish(res, err)
		return res, err
	}
	res.Ops = plan.Ops
	e.setState(StateAccepted)
	e.setState(StateDispatching)
	e.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, e.timeout)
	err = e.store.ApplyOrder(dctx, plan.Ops)
	cancel()
	if err != nil {
		e.mu.Lock()
		e.setState(StateFailed)
		e.setState(StateIdle)
		e.mu.Unlock()
		res.Status, res.Reason = MoveFailed, err.Error()
		e.logger.Warn("move dispatch failed",
			slog.Int64("source_id", sourceID),
			slog.String("error", err.Error()))
		err = classifyStoreError(err)
		e.finish(res, err)
		return res, err
	}

	e.mu.Lock()
	e.setState(StateSucceeded)
	e.setState(StateRebuilding)
	e.mu.Unlock()

	err = e.rebuild(ctx)

	e.mu.Lock()
	e.setState(StateIdle)
	res.Seq = e.snap.Seq
	e.mu.Unlock()

	res.Status = MoveApplied
	if err != nil && !errors.Is(err, errStale) {
		// The move is stored; the old forest stays until the next refresh.
		e.finish(res, err)
		return res, err
	}
	e.finish(res, nil)
	return res, nil
}

func (e *Engine) rebuild(ctx context.Context) error {
	e.mu.Lock()
	e.issued++
	seq := e.issued
	e.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	records, err := e.store.FetchAll(fctx)
	cancel()
	if err != nil {
		e.logger.Warn("rebuild fetch failed", slog.Uint64("seq", seq), slog.String("error", err.Error()))
		for _, o := range e.observers {
			o.RebuildFailed(seq, err)
		}
		return fmt.Errorf("%w: fetch records: %w", apperr.ErrTransport, err)
	}

	built := Build(records)

	e.mu.Lock()
	if seq != e.issued {
		e.mu.Unlock()
		e.logger.Debug("rebuild discarded", slog.Uint64("seq", seq))
		for _, o := range e.observers {
			o.RebuildDiscarded(seq)
		}
		return errStale
	}
	e.snap = Snapshot{
		Seq:       seq,
		Forest:    built.Forest,
		Anomalies: built.Anomalies,
		Records:   records,
		BuiltAt:   time.Now(),
	}
	snap := e.snap
	e.mu.Unlock()

	for _, a := range snap.Anomalies {
		e.logger.Warn("menu placed at top level",
			slog.Int64("record_id", a.RecordID),
			slog.String("reason", string(a.Reason)))
	}
	e.logger.Debug("forest rebuilt", slog.Uint64("seq", seq), slog.Int("records", len(records)))
	for _, o := range e.observers {
		o.Rebuilt(snap)
	}
	return nil
}

// classifyStoreError keeps domain rejections from the store as they are and
// marks everything else as a retryable transport failure.
func classifyStoreError(err error) error {
	for _, domainErr := range []error{apperr.ErrCycle, apperr.ErrNotFound, apperr.ErrInvalidMove} {
		if errors.Is(err, domainErr) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", apperr.ErrTransport, err)
}

func (e *Engine) setState(to State) {
	from := e.state
	e.state = to
	for _, o := range e.observers {
		o.StateChanged(from, to)
	}
}

func (e *Engine) finish(res MoveResult, err error) {
	for _, o := range e.observers {
		o.MoveFinished(res, err)
	}
}
