// Package fuzzcore provides minimal concrete shapes for the fuzzer
// collaborators the centralized event manager treats as callbacks: the
// corpus, the executor, and the exit-kind enum. A real fuzzer supplies its
// own, richer versions satisfying the same interfaces.
package fuzzcore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExitKind classifies how a single execution of the target ended.
type ExitKind string

const (
	ExitOk      ExitKind = "ok"
	ExitCrash   ExitKind = "crash"
	ExitTimeout ExitKind = "timeout"
	ExitOom     ExitKind = "oom"
)

// CorpusID identifies a corpus entry. The upstream representation is a
// generational index into an in-process arena; a process-unique opaque ID
// is the faithful Go analogue since entries never migrate across processes.
type CorpusID = uuid.UUID

// CorpusEntry is one accepted input together with the metadata the main
// evaluator recorded when it accepted it.
type CorpusEntry struct {
	ID      CorpusID
	Input   []byte
	AddedAt time.Time
}

// Corpus is an in-memory store of accepted inputs, guarded by a mutex since
// the centralized core is not reentrant but tests may touch it concurrently.
type Corpus struct {
	mu      sync.RWMutex
	entries map[CorpusID]*CorpusEntry
}

// NewCorpus returns an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{entries: make(map[CorpusID]*CorpusEntry)}
}

// Add stores input as a new corpus entry and returns its ID.
func (c *Corpus) Add(input []byte) CorpusID {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New()
	c.entries[id] = &CorpusEntry{ID: id, Input: input, AddedAt: time.Now()}
	return id
}

// Get returns the entry for id, or nil if it is not present.
func (c *Corpus) Get(id CorpusID) *CorpusEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[id]
}

// Len returns the number of entries currently in the corpus.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Executor runs a single input against the target under test.
type Executor interface {
	Run(ctx context.Context, input []byte) (ExitKind, error)
}

// Fuzzer is the main evaluator's view of the fuzzing engine: it can
// re-execute an input locally, or trust a remote observer snapshot and
// process it without re-executing.
type Fuzzer interface {
	// EvaluateInputWithObservers re-executes input through executor and
	// decides corpus acceptance locally. sendEvents controls whether the
	// fuzzer also fires its own events as a side effect; the centralized
	// main role always passes false to avoid a forwarding loop.
	EvaluateInputWithObservers(ctx context.Context, executor Executor, input []byte, sendEvents bool) (ExitKind, *CorpusID, error)

	// ExecuteAndProcess trusts a previously-serialized observer snapshot
	// instead of re-executing, and decides corpus acceptance from it.
	ExecuteAndProcess(ctx context.Context, input []byte, observersBuf []byte, exitKind ExitKind, sendEvents bool) (ExitKind, *CorpusID, error)
}
