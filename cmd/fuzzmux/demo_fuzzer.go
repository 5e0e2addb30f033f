package main

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/fuzzcore"
)

// demoExecutor and demoFuzzer are a minimal Executor/Fuzzer pair used when
// no target-specific harness is wired in. They let every process role run
// end-to-end (attach, exchange events, persist corpus) without pulling in
// an actual fuzzing engine, which is outside the centralized event
// manager's scope.
type demoExecutor struct{}

func (demoExecutor) Run(ctx context.Context, input []byte) (fuzzcore.ExitKind, error) {
	return fuzzcore.ExitOk, nil
}

type demoFuzzer struct {
	corpus *fuzzcore.Corpus
}

func newDemoFuzzer() *demoFuzzer {
	return &demoFuzzer{corpus: fuzzcore.NewCorpus()}
}

func (f *demoFuzzer) EvaluateInputWithObservers(ctx context.Context, executor fuzzcore.Executor, input []byte, sendEvents bool) (fuzzcore.ExitKind, *fuzzcore.CorpusID, error) {
	exitKind, err := executor.Run(ctx, input)
	if err != nil {
		return exitKind, nil, err
	}
	return f.accept(exitKind, input)
}

func (f *demoFuzzer) ExecuteAndProcess(ctx context.Context, input []byte, observersBuf []byte, exitKind fuzzcore.ExitKind, sendEvents bool) (fuzzcore.ExitKind, *fuzzcore.CorpusID, error) {
	return f.accept(exitKind, input)
}

func (f *demoFuzzer) accept(exitKind fuzzcore.ExitKind, input []byte) (fuzzcore.ExitKind, *fuzzcore.CorpusID, error) {
	if exitKind != fuzzcore.ExitOk {
		return exitKind, nil, nil
	}
	id := f.corpus.Add(input)
	return exitKind, &id, nil
}
