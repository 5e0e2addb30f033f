// Package adaptive implements the adaptive-serialization decision the
// centralized event manager applies before attaching an observer snapshot
// to a NewTestcase.
package adaptive

import (
	"time"

	"github.com/cuemby/fuzzmux/pkg/innermgr"
)

// CentralizedFactor is the factor the centralized manager passes to the
// inner manager's policy: twice the inner's typical factor of 2, because
// the centralized path pays the serialization cost on both sides of the
// hop to the main evaluator.
const CentralizedFactor = 4

// Threshold is the percentage of recent decisions that may have chosen to
// serialize before the policy starts declining.
const Threshold = 80

// Policy decides, for a given set of observer bytes, whether to attach
// them to an outgoing NewTestcase, and records the cost of doing so back
// into the inner manager's running counters.
type Policy struct {
	inner innermgr.Manager
}

// NewPolicy returns a Policy delegating its counters to inner.
func NewPolicy(inner innermgr.Manager) *Policy {
	return &Policy{inner: inner}
}

// Decide returns the bytes to attach (nil if the policy declines) and
// whether it chose to serialize. serialize is the caller's function that
// actually produces the serialized bytes; it is called only when the
// policy chooses to serialize, and its wall-clock cost is then fed back
// into the running counters. A declined decision is recorded with zero
// cost.
func (p *Policy) Decide(observers []byte, serialize func([]byte) ([]byte, error)) ([]byte, bool, error) {
	candidate, shouldSerialize := p.inner.SerializeObserversAdaptive(observers, CentralizedFactor, Threshold)
	if !shouldSerialize {
		p.inner.RecordSerialization(0, false)
		return nil, false, nil
	}

	start := time.Now()
	buf, err := serialize(candidate)
	elapsed := time.Since(start)

	p.inner.RecordSerialization(elapsed.Nanoseconds(), true)
	if err != nil {
		return nil, false, err
	}
	return buf, true, nil
}
