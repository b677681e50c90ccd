package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/termalign/internal/config"
	"github.com/roach88/termalign/internal/engine"
	"github.com/roach88/termalign/internal/hierarchy"
	"github.com/roach88/termalign/internal/lock"
	"github.com/roach88/termalign/internal/store"
	"github.com/roach88/termalign/internal/taxonomy"
	"github.com/roach88/termalign/internal/term"
	"github.com/roach88/termalign/internal/testutil"
)

// Owner is the session owner scenarios run as.
const Owner = "harness"

// Harness executes one scenario against a running engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite database in a temp directory.
//
// Execution flow:
// 1. Import taxonomies and create the alignment
// 2. Load the alignment session
// 3. Execute steps, checking each expect value
// 4. Capture the final session and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "termalign-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	cfg := config.Default()
	if scenario.Limits.SweepEvery != nil {
		cfg.Limits.SweepEvery = *scenario.Limits.SweepEvery
	}
	if scenario.Limits.MaxCascadeDepth != nil {
		cfg.Limits.MaxCascadeDepth = *scenario.Limits.MaxCascadeDepth
	}

	reader := hierarchy.New(st, cfg.Vocabulary, cfg.Limits.MaxCascadeDepth)
	eng := engine.New(st, reader, lock.NewMemoryLocker(), cfg,
		engine.WithIDGenerator(testutil.NewSequentialIDs("alignment")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	defer func() {
		eng.Stop()
		<-done
	}()

	h := &Harness{store: st, engine: eng}
	if err := h.setup(ctx, scenario, cfg.Vocabulary); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev := result.AddTrace(step.Op, stepArgs(step), h.execute(ctx, step))
		if step.Expect != "" && ev.Outcome != step.Expect {
			result.AddError(fmt.Sprintf("step %d (%s %s): expected %q, got %q", i+1, step.Op, ev.Args, step.Expect, ev.Outcome))
		}
	}

	snap, err := eng.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot session: %w", err)
	}
	result.Alignment = snap.Alignment.ID
	for _, e := range snap.Edges {
		result.Edges = append(result.Edges, e.Key().String())
	}
	sort.Strings(result.Edges)
	result.Aligned = append(result.Aligned, snap.Aligned...)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// setup imports the taxonomies, creates the alignment and loads it.
func (h *Harness) setup(ctx context.Context, s *Scenario, vocab config.Vocabulary) error {
	for i := range s.Taxonomies {
		tax := s.Taxonomies[i]
		tax.Normalize()
		if err := tax.Validate(); err != nil {
			return err
		}
		if _, err := taxonomy.Import(ctx, h.store, vocab, &tax); err != nil {
			return err
		}
	}
	info, err := h.engine.CreateAlignment(ctx, s.Name, s.Alignment.Source, s.Alignment.Target)
	if err != nil {
		return err
	}
	return h.engine.LoadSession(ctx, info.ID, Owner)
}

// execute runs one step and renders its outcome.
func (h *Harness) execute(ctx context.Context, step Step) string {
	switch step.Op {
	case OpAdd:
		rel, _ := term.ParseRelation(step.Relation)
		added, err := h.engine.AddAlignment(ctx, term.Ref{ID: step.Source}, term.Ref{ID: step.Target}, rel, step.Inverted)
		if err != nil {
			return outcomeError(err)
		}
		if !added {
			return "duplicate"
		}
		return "added"

	case OpRemove:
		rel, _ := term.ParseRelation(step.Relation)
		if err := h.engine.RemoveTerm(ctx, step.Source, rel, step.Target, step.Inverted); err != nil {
			return outcomeError(err)
		}
		return "removed"

	case OpSweep:
		report, err := h.engine.Sweep(ctx)
		if err != nil {
			return outcomeError(err)
		}
		return fmt.Sprintf("iterations=%d removed=%d", report.Iterations, report.Removed)

	case OpCheck:
		side := engine.SideSource
		if step.Side != "" {
			side = engine.Side(step.Side)
		}
		res, err := h.engine.CheckSynchronized(ctx, side, step.Term)
		if err != nil {
			return outcomeError(err)
		}
		if res.InSync {
			return "in sync"
		}
		if res.At != "" && res.At != step.Term {
			return fmt.Sprintf("%s at %s", res.Reason, res.At)
		}
		return string(res.Reason)

	case OpUpgrade:
		report, err := h.engine.UpgradeAlignment(ctx, "", "", "")
		if err != nil {
			return outcomeError(err)
		}
		return fmt.Sprintf("alignment=%s copied=%d pruned=%d stale=%d",
			report.Alignment.ID, report.Copied, len(report.Pruned), len(report.Stale))

	case OpAligned:
		ok, err := h.engine.IsSourceAligned(ctx, step.Term)
		if err != nil {
			return outcomeError(err)
		}
		return fmt.Sprint(ok)
	}
	return "unknown op"
}

// outcomeError renders an engine error by its code.
func outcomeError(err error) string {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return "error " + string(re.Code)
	}
	return "error: " + err.Error()
}

func stepArgs(step Step) string {
	switch step.Op {
	case OpAdd, OpRemove:
		args := fmt.Sprintf("%s %s %s", step.Source, step.Relation, step.Target)
		if step.Inverted {
			args += " inverted"
		}
		return args
	case OpCheck:
		side := step.Side
		if side == "" {
			side = "source"
		}
		return side + " " + step.Term
	case OpAligned:
		return step.Term
	}
	return ""
}
