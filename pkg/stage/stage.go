// Package stage implements the staged-work restart/resume protocol:
// the Stage contract, tuple traversal with resume, and the two
// restart-progress helpers stages use to survive a process restart
// mid-attempt.
package stage

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
	"github.com/cuemby/fuzzmux/pkg/fuzzcore"
)

// Manager is the narrow event-manager surface a Stage receives; it
// exposes only the manager's client id.
type Manager interface {
	MgrID() uint32
}

// Stage is one unit of staged work applied to the current corpus entry.
type Stage interface {
	// Name identifies this stage's persisted restart metadata. Two
	// stages sharing a name share that metadata; treat the name as the
	// stage's identity.
	Name() string

	// RestartProgressShouldRun is an idempotent initializer of per-stage
	// resume metadata; it returns whether Perform should execute.
	RestartProgressShouldRun(ctx context.Context, state *State) (bool, error)

	Perform(ctx context.Context, fuzzer fuzzcore.Fuzzer, executor fuzzcore.Executor, state *State, mgr Manager) error

	// ClearRestartProgress is called after successful completion; it
	// removes this stage's per-stage metadata.
	ClearRestartProgress(ctx context.Context, state *State) error
}

// PerformRestartable runs the canonical sequence: if should_run, perform;
// then clear. An error from RestartProgressShouldRun or Perform is
// returned before clearing.
func PerformRestartable(ctx context.Context, s Stage, fuzzer fuzzcore.Fuzzer, executor fuzzcore.Executor, state *State, mgr Manager) error {
	should, err := s.RestartProgressShouldRun(ctx, state)
	if err != nil {
		return err
	}
	if should {
		if err := s.Perform(ctx, fuzzer, executor, state, mgr); err != nil {
			return err
		}
	}
	return s.ClearRestartProgress(ctx, state)
}

// Traverse runs stages in order, resuming from state's persisted
// current-stage index: it counts the remaining
// tail length, not a head offset, so resume decisions are made locally at
// each recursive step without knowing the total stage count upfront.
func Traverse(ctx context.Context, stages []Stage, fuzzer fuzzcore.Fuzzer, executor fuzzcore.Executor, state *State, mgr Manager) error {
	if len(stages) == 0 {
		return nil
	}

	tailLen := len(stages)
	idx, err := state.CurrentStageIdx(ctx)
	if err != nil {
		return err
	}

	switch {
	case idx == nil:
		if err := state.SetCurrentStageIdx(ctx, tailLen); err != nil {
			return err
		}
		if err := PerformRestartable(ctx, stages[0], fuzzer, executor, state, mgr); err != nil {
			return err
		}
		if err := state.ClearStage(ctx); err != nil {
			return err
		}
	case *idx == tailLen:
		if err := PerformRestartable(ctx, stages[0], fuzzer, executor, state, mgr); err != nil {
			return err
		}
		if err := state.ClearStage(ctx); err != nil {
			return err
		}
	case *idx < tailLen:
		// Resuming further into the tail; this head already ran (or is
		// being skipped past) in a previous attempt.
	default:
		return evmerr.New(evmerr.IllegalState, "current_stage_idx exceeds remaining tuple length")
	}

	return Traverse(ctx, stages[1:], fuzzer, executor, state, mgr)
}
