package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/termalign/internal/config"
	"github.com/roach88/termalign/internal/drift"
	"github.com/roach88/termalign/internal/hierarchy"
	"github.com/roach88/termalign/internal/index"
	"github.com/roach88/termalign/internal/lock"
	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/store"
	"github.com/roach88/termalign/internal/term"
)

// GraphStore is the persistence the engine writes through.
// Implemented by *store.Store.
type GraphStore interface {
	RunUpdate(ctx context.Context, u queryir.Update) (store.UpdateResult, error)
	RegisterGraph(ctx context.Context, g store.GraphInfo) error
	Graph(ctx context.Context, id string) (store.GraphInfo, error)
	LatestVersion(ctx context.Context, name string) (store.GraphInfo, error)
	CopyGraph(ctx context.Context, from, to string) (int64, error)
	DropGraph(ctx context.Context, id string) error
}

// Hierarchy is the structural read side.
// Implemented by *hierarchy.Reader.
type Hierarchy interface {
	drift.ParentReader
	DirectChildren(ctx context.Context, graphs []string, termID string) ([]string, error)
	Ancestors(ctx context.Context, graphs []string, termID string) ([]string, error)
	Multiplicity(ctx context.Context, sc hierarchy.Scope, termID string) (int, error)
	NonAlignedDirectChildren(ctx context.Context, sc hierarchy.Scope, termID string) ([]string, error)
	OrphanCandidates(ctx context.Context, sc hierarchy.Scope) ([]hierarchy.Orphan, error)
	HierarchyEdgeCount(ctx context.Context, alignment string) (int, error)
	Edges(ctx context.Context, sc hierarchy.Scope) ([]term.Edge, error)
}

// Engine is the single-writer alignment session engine.
//
// CRITICAL: All index mutations happen in the Run goroutine.
// Public methods submit commands and wait for them.
//
// Thread-safety model:
//   - Public operation methods: safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store    GraphStore
	reader   Hierarchy
	locker   lock.Locker
	detector *drift.Detector
	cfg      config.Config
	ids      IDGenerator
	queue    *commandQueue

	// Owned by the Run goroutine.
	sess *session
}

// session is the state of one loaded alignment.
type session struct {
	info     store.GraphInfo
	scope    hierarchy.Scope
	owner    string
	index    *index.Index
	tracker  *index.Tracker
	removals int
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the generator for upgraded alignment ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an engine. Run must be started before any operation is
// called.
func New(s GraphStore, h Hierarchy, l lock.Locker, cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		reader:   h,
		locker:   l,
		detector: drift.NewDetector(h, cfg.Limits.MaxDriftDepth),
		cfg:      cfg,
		ids:      UUIDv7Generator{},
		queue:    newCommandQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the single-writer loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// A failed command is logged and reported through its Future; the loop
// continues with the next command.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		if cmd, ok := e.queue.TryDequeue(); ok {
			e.execute(cmd)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			for _, cmd := range e.queue.Drain() {
				cmd.reply.resolve(ErrStopped)
			}
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Stop, so an empty closed
			// queue ends the loop.
			if e.queue.Len() == 0 && e.stopped() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop stops accepting commands. Run returns after draining queued ones.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// execute runs one command on the Run goroutine.
func (e *Engine) execute(cmd command) {
	ctx, span := startCommandSpan(cmd.ctx, cmd.name)
	start := time.Now()

	err := cmd.run(ctx)
	if err != nil {
		slog.Error("engine command failed",
			"op", cmd.name,
			"error", err,
		)
	}
	finishCommand(span, cmd.name, start, err)
	cmd.reply.resolve(err)
}

// submit enqueues fn and returns its Future.
func (e *Engine) submit(ctx context.Context, name string, fn func(ctx context.Context) error) *Future {
	f := newFuture()
	if !e.queue.Enqueue(command{name: name, ctx: ctx, run: fn, reply: f}) {
		f.resolve(ErrStopped)
	}
	return f
}

// do submits fn and waits for it.
func (e *Engine) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return e.submit(ctx, name, fn).Wait(ctx)
}

// requireSession returns the loaded session. Run goroutine only.
func (e *Engine) requireSession() (*session, error) {
	if e.sess == nil {
		return nil, noSessionError()
	}
	return e.sess, nil
}

// LoadSession loads an alignment graph into a fresh index and tracker,
// replacing any loaded session. owner must be able to take the alignment's
// session lock; the previous session's lock is released.
func (e *Engine) LoadSession(ctx context.Context, alignmentID, owner string) error {
	return e.do(ctx, "LoadSession", func(ctx context.Context) error {
		return e.loadSession(ctx, alignmentID, owner)
	})
}

func (e *Engine) loadSession(ctx context.Context, alignmentID, owner string) error {
	info, err := e.alignmentInfo(ctx, alignmentID)
	if err != nil {
		return err
	}

	if err := e.locker.Acquire(ctx, alignmentID, owner); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return &RuntimeError{Code: ErrCodeSessionLocked, Message: "session lock held by another owner", Alignment: alignmentID, Err: err}
		}
		return fmt.Errorf("acquire session lock: %w", err)
	}

	sess, err := e.buildSession(ctx, info, owner)
	if err != nil {
		if prev := e.sess; prev == nil || prev.info.ID != alignmentID || prev.owner != owner {
			e.releaseLock(ctx, alignmentID, owner)
		}
		return err
	}

	if prev := e.sess; prev != nil && (prev.info.ID != alignmentID || prev.owner != owner) {
		e.releaseLock(ctx, prev.info.ID, prev.owner)
	}
	e.sess = sess
	indexEdges.Set(float64(sess.index.Len()))

	slog.Info("session loaded",
		"alignment", alignmentID,
		"owner", owner,
		"source", info.SourceGraph,
		"target", info.TargetGraph,
		"edges", sess.index.Len(),
	)
	return nil
}

func (e *Engine) releaseLock(ctx context.Context, alignmentID, owner string) {
	if err := e.locker.Release(ctx, alignmentID, owner); err != nil {
		slog.Warn("release session lock", "alignment", alignmentID, "owner", owner, "error", err)
	}
}

// alignmentInfo reads and checks an alignment registry row.
func (e *Engine) alignmentInfo(ctx context.Context, alignmentID string) (store.GraphInfo, error) {
	info, err := e.store.Graph(ctx, alignmentID)
	if errors.Is(err, store.ErrGraphNotFound) {
		return store.GraphInfo{}, &RuntimeError{Code: ErrCodeUnknownAlignment, Message: "alignment graph is not registered", Alignment: alignmentID, Err: err}
	}
	if err != nil {
		return store.GraphInfo{}, storeError(alignmentID, "", "read alignment registry", err)
	}
	if info.Kind != store.KindAlignment {
		return store.GraphInfo{}, &RuntimeError{Code: ErrCodeUnknownAlignment, Message: fmt.Sprintf("graph is a %s, not an alignment", info.Kind), Alignment: alignmentID}
	}
	return info, nil
}

// buildSession streams the alignment's edges into a new index and derives
// the tracker from store multiplicities.
func (e *Engine) buildSession(ctx context.Context, info store.GraphInfo, owner string) (*session, error) {
	sc := hierarchy.Scope{Alignment: info.ID, Source: info.SourceGraph, Target: info.TargetGraph}
	edges, err := e.reader.Edges(ctx, sc)
	if err != nil {
		return nil, storeError(info.ID, "", "load edges", err)
	}

	sess := &session{
		info:    info,
		scope:   sc,
		owner:   owner,
		index:   index.New(),
		tracker: index.NewTracker(),
	}
	for _, edge := range edges {
		sess.index.Add(edge)
	}

	candidates := make(map[string]bool)
	var propagating []string
	for _, edge := range edges {
		candidates[edge.Source.ID] = true
		if edge.Relation == term.Broader {
			candidates[edge.Target.ID] = true
		}
		if edge.Relation.Propagates() {
			propagating = append(propagating, edge.Source.ID)
		}
	}
	for _, root := range propagating {
		desc, err := e.descendants(ctx, []string{sc.Source, sc.Alignment}, sc.Alignment, root)
		if err != nil {
			return nil, err
		}
		for _, d := range desc {
			candidates[d.child] = true
		}
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	if err := e.refreshTracker(ctx, sess, ids); err != nil {
		return nil, err
	}

	for _, edge := range edges {
		if !edge.Relation.Explicit() {
			continue
		}
		if err := e.flagAncestors(ctx, sess, edge.Source.ID); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// flagAncestors sets the display flag on every ancestor of an aligned term.
func (e *Engine) flagAncestors(ctx context.Context, sess *session, termID string) error {
	anc, err := e.reader.Ancestors(ctx, []string{sess.scope.Source, sess.scope.Alignment}, termID)
	if err != nil {
		return storeError(sess.info.ID, termID, "read ancestors", err)
	}
	for _, a := range anc {
		sess.tracker.FlagDescendant(a)
	}
	return nil
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Alignment   store.GraphInfo `json:"alignment"`
	Owner       string          `json:"owner"`
	Edges       []term.Edge     `json:"edges"`
	Aligned     []string        `json:"aligned"`
	Tracker     map[string]bool `json:"tracker"`
	Removals    int             `json:"removals"`
	IndexedKeys int             `json:"indexed_keys"`
}

// Snapshot returns the settled state of the loaded session. Commands queued
// before it, including their cascades, have completed.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, "Snapshot", func(context.Context) error {
		sess, err := e.requireSession()
		if err != nil {
			return err
		}
		snap = Snapshot{
			Alignment:   sess.info,
			Owner:       sess.owner,
			Edges:       sess.index.Edges(),
			Aligned:     sess.tracker.Aligned(),
			Tracker:     sess.tracker.Snapshot(),
			Removals:    sess.removals,
			IndexedKeys: len(sess.index.SourceIDs()) + len(sess.index.TargetIDs()),
		}
		return nil
	})
	return snap, err
}

// IsSourceAligned reads the tracker. It never queries the store.
func (e *Engine) IsSourceAligned(ctx context.Context, termID string) (bool, error) {
	var aligned bool
	err := e.do(ctx, "IsSourceAligned", func(context.Context) error {
		sess, err := e.requireSession()
		if err != nil {
			return err
		}
		aligned = sess.tracker.IsAligned(term.NormalizeID(termID))
		return nil
	})
	return aligned, err
}

// HasAlignedDescendant reads the display flag of a source term.
func (e *Engine) HasAlignedDescendant(ctx context.Context, termID string) (bool, error) {
	var flagged bool
	err := e.do(ctx, "HasAlignedDescendant", func(context.Context) error {
		sess, err := e.requireSession()
		if err != nil {
			return err
		}
		flagged = sess.tracker.HasAlignedDescendant(term.NormalizeID(termID))
		return nil
	})
	return flagged, err
}

// ExplicitlyAlignedInContext reports whether sourceID has its own edge to
// targetID, optionally of one relation.
func (e *Engine) ExplicitlyAlignedInContext(ctx context.Context, sourceID, targetID string, rel *term.Relation) (bool, error) {
	var ok bool
	err := e.do(ctx, "ExplicitlyAlignedInContext", func(context.Context) error {
		sess, err := e.requireSession()
		if err != nil {
			return err
		}
		ok = sess.index.ExplicitlyAlignedInContext(term.NormalizeID(sourceID), term.NormalizeID(targetID), rel)
		return nil
	})
	return ok, err
}

// TermsRelatedTo returns the target ids sourceID has edges to.
func (e *Engine) TermsRelatedTo(ctx context.Context, sourceID string, rel *term.Relation) ([]string, error) {
	var ids []string
	err := e.do(ctx, "TermsRelatedTo", func(context.Context) error {
		sess, err := e.requireSession()
		if err != nil {
			return err
		}
		ids = sess.index.TermsRelatedTo(term.NormalizeID(sourceID), rel)
		return nil
	})
	return ids, err
}

// Close releases the session lock of the loaded session.
func (e *Engine) Close(ctx context.Context) error {
	return e.do(ctx, "Close", func(ctx context.Context) error {
		if e.sess == nil {
			return nil
		}
		err := e.locker.Release(ctx, e.sess.info.ID, e.sess.owner)
		e.sess = nil
		indexEdges.Set(0)
		return err
	})
}
