package stage

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
	"github.com/cuemby/fuzzmux/pkg/fuzzcore"
)

// RetryRestartHelper limits how many times a stage may re-attempt the
// same corpus entry across restarts. TriesRemaining is non-nil while the
// stage is mid-attempt and nil between attempts.
//
// tries_remaining is lazily initialized to max_retries+1 and decremented
// on every call; the call whose decrement brings it to zero is the one
// that reports failure and records the corpus id as skipped. This
// resolves a literal reading conflict in the governing spec text between
// its worked three-call/max_retries=2 trace and its max_retries=0
// one-liner; see DESIGN.md for the full account.
type RetryRestartHelper struct {
	TriesRemaining *int
	Skipped        map[fuzzcore.CorpusID]bool
}

// ShouldRun decides whether a stage attempt on corpusID should proceed,
// per the restart/resume retry policy.
func (h *RetryRestartHelper) ShouldRun(corpusID fuzzcore.CorpusID, maxRetries int) (bool, error) {
	if h.Skipped == nil {
		h.Skipped = make(map[fuzzcore.CorpusID]bool)
	}
	if h.Skipped[corpusID] {
		return false, nil
	}

	if h.TriesRemaining == nil {
		n := maxRetries + 1
		h.TriesRemaining = &n
	}

	*h.TriesRemaining--
	if *h.TriesRemaining < 0 {
		return false, evmerr.New(evmerr.IllegalState, "tries_remaining underflowed")
	}
	if *h.TriesRemaining == 0 {
		h.Skipped[corpusID] = true
		return false, nil
	}
	return true, nil
}

// ClearRestartProgress resets the mid-attempt counter; Skipped persists
// across clears since it records permanent exclusions for this session.
func (h *RetryRestartHelper) ClearRestartProgress() {
	h.TriesRemaining = nil
}

// ExecutionCountRestartHelperMetadata records the global execution
// counter at stage entry, so a stage can compute
// execs_since_start = state.executions - started_at_execs.
type ExecutionCountRestartHelperMetadata struct {
	StartedAtExecs uint64
}

// ExecsSince returns the number of executions since this metadata was
// recorded, given the current global execution count.
func (m ExecutionCountRestartHelperMetadata) ExecsSince(currentExecs uint64) uint64 {
	return currentExecs - m.StartedAtExecs
}

// State is the per-process fuzzing state a Stage touches: the global
// execution counter, the currently-executing stage index, and a Store
// persisting both restart helpers across respawns.
type State struct {
	Executions uint64
	store      Store
}

// NewState returns a State backed by store.
func NewState(store Store) *State {
	return &State{store: store}
}

// CurrentStageIdx returns the persisted stage index, or nil for "between
// stages".
func (s *State) CurrentStageIdx(ctx context.Context) (*int, error) {
	return s.store.LoadCurrentStageIdx(ctx)
}

// SetCurrentStageIdx persists idx as the currently-executing stage index.
func (s *State) SetCurrentStageIdx(ctx context.Context, idx int) error {
	return s.store.SaveCurrentStageIdx(ctx, &idx)
}

// ClearStage restores the "between stages" (None) index.
func (s *State) ClearStage(ctx context.Context) error {
	return s.store.SaveCurrentStageIdx(ctx, nil)
}

// RetryHelper loads (creating if absent) the RetryRestartHelper for the
// named stage.
func (s *State) RetryHelper(ctx context.Context, stageName string) (*RetryRestartHelper, error) {
	h, err := s.store.LoadRetryHelper(ctx, stageName)
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = &RetryRestartHelper{}
	}
	return h, nil
}

// SaveRetryHelper persists h under stageName.
func (s *State) SaveRetryHelper(ctx context.Context, stageName string, h *RetryRestartHelper) error {
	return s.store.SaveRetryHelper(ctx, stageName, h)
}

// ClearRetryHelper removes the mid-attempt counter for stageName,
// matching RetryRestartHelper.ClearRestartProgress's semantics at the
// persisted-state layer.
func (s *State) ClearRetryHelper(ctx context.Context, stageName string) error {
	h, err := s.RetryHelper(ctx, stageName)
	if err != nil {
		return err
	}
	h.ClearRestartProgress()
	return s.SaveRetryHelper(ctx, stageName, h)
}

// ExecCountHelper loads (creating if absent) the execution-count metadata
// for the named stage type.
func (s *State) ExecCountHelper(ctx context.Context, stageType string) (*ExecutionCountRestartHelperMetadata, error) {
	m, err := s.store.LoadExecCountHelper(ctx, stageType)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &ExecutionCountRestartHelperMetadata{StartedAtExecs: s.Executions}
	}
	return m, nil
}

// SaveExecCountHelper persists m under stageType.
func (s *State) SaveExecCountHelper(ctx context.Context, stageType string, m *ExecutionCountRestartHelperMetadata) error {
	return s.store.SaveExecCountHelper(ctx, stageType, m)
}

// ClearExecCountHelper removes stageType's metadata entirely.
func (s *State) ClearExecCountHelper(ctx context.Context, stageType string) error {
	return s.store.DeleteExecCountHelper(ctx, stageType)
}
