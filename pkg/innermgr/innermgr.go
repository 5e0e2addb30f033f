// Package innermgr defines the delegate the centralized event manager
// wraps: the inner, main-broker-facing event manager. The
// centralized manager is transparent to this delegate's semantics except
// for the secondary and main-evaluator diversions.
package innermgr

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/wire"
)

// Manager is the inner event manager interface the centralized core
// delegates to for anything outside its own routing concerns.
type Manager interface {
	Fire(ctx context.Context, ev wire.Event) error
	Log(ctx context.Context, msg string) error
	OnRestart(ctx context.Context) error
	SendExiting(ctx context.Context) error
	AwaitRestartSafe(ctx context.Context) error
	MgrID() uint32
	Configuration() string

	// Adaptive serialization counters. Kept always-present rather
	// than compiled out, per the design notes' recommendation.
	SerializationTime() (total int64, count int64)
	DeserializationTime() (total int64, count int64)
	RecordSerialization(durationNanos int64, didSerialize bool)
	SerializeObserversAdaptive(observers []byte, factor int, thresholdPct int) ([]byte, bool)
}

// Basic is a reference Manager implementation: a thin wrapper over a
// second transport.Client pointed at the main broker, so the module is
// runnable end-to-end without an externally supplied inner manager.
type Basic struct {
	client Client
	id     uint32
	config string

	serializationTimeNanos   int64
	serializationCount       int64
	deserializationTimeNanos int64
	deserializationCount     int64
	recentDecisions          []bool
}

// Client is the minimal transport surface Basic needs from its main-broker
// connection; satisfied by *transport.TCPClient.
type Client interface {
	SendBuf(tag wire.Tag, payload []byte) error
	ID() uint32
}

// NewBasic returns a Basic inner manager sending to client with the given
// client_config string (the compatibility check compares this
// across peers).
func NewBasic(client Client, config string) *Basic {
	return &Basic{client: client, id: client.ID(), config: config}
}

func (b *Basic) MgrID() uint32          { return b.id }
func (b *Basic) Configuration() string  { return b.config }

func (b *Basic) Fire(ctx context.Context, ev wire.Event) error {
	payload, err := wire.Serialize(ev)
	if err != nil {
		return err
	}
	return b.client.SendBuf(wire.Tag(0), payload)
}

func (b *Basic) Log(ctx context.Context, msg string) error {
	return b.Fire(ctx, wire.Log{Payload: []byte(msg)})
}

func (b *Basic) OnRestart(ctx context.Context) error      { return nil }
func (b *Basic) SendExiting(ctx context.Context) error    { return nil }
func (b *Basic) AwaitRestartSafe(ctx context.Context) error { return nil }

func (b *Basic) SerializationTime() (int64, int64) {
	return b.serializationTimeNanos, b.serializationCount
}

func (b *Basic) DeserializationTime() (int64, int64) {
	return b.deserializationTimeNanos, b.deserializationCount
}

func (b *Basic) RecordSerialization(durationNanos int64, didSerialize bool) {
	if didSerialize {
		b.serializationTimeNanos += durationNanos
		b.serializationCount++
	}
	b.recentDecisions = append(b.recentDecisions, didSerialize)
	if len(b.recentDecisions) > 100 {
		b.recentDecisions = b.recentDecisions[len(b.recentDecisions)-100:]
	}
}

// SerializationRatio reports the fraction of recent adaptive decisions
// that chose to serialize, for metrics polling.
func (b *Basic) SerializationRatio() float64 {
	if len(b.recentDecisions) == 0 {
		return 0
	}
	serialized := 0
	for _, d := range b.recentDecisions {
		if d {
			serialized++
		}
	}
	return float64(serialized) / float64(len(b.recentDecisions))
}

// SerializeObserversAdaptive implements the adaptive policy assigned to
// the inner manager: it serializes only while fewer than thresholdPct% of
// the last 100 recorded decisions chose to serialize. Its cost check
// compares the mean recorded serialization time against factor times that
// same mean, so it passes before the first recorded serialization and
// whenever the mean is positive, and fails only when the mean is zero. No
// execution time is tracked, so serialization cost is not weighed against
// execution cost.
func (b *Basic) SerializeObserversAdaptive(observers []byte, factor int, thresholdPct int) ([]byte, bool) {
	referenceNanos := int64(1)
	if b.serializationCount > 0 {
		referenceNanos = b.serializationTimeNanos / b.serializationCount
	}

	lastCostNanos := referenceNanos
	if b.serializationCount > 0 {
		lastCostNanos = b.serializationTimeNanos / b.serializationCount
	}

	costOK := lastCostNanos < int64(factor)*referenceNanos || b.serializationCount == 0

	serializeCount := 0
	for _, d := range b.recentDecisions {
		if d {
			serializeCount++
		}
	}
	ratio := 0
	if len(b.recentDecisions) > 0 {
		ratio = serializeCount * 100 / len(b.recentDecisions)
	}
	underThreshold := ratio < thresholdPct

	if costOK && underThreshold {
		return observers, true
	}
	return nil, false
}
