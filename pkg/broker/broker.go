// Package broker implements the two broker processes: the centralized
// broker that routes candidate inputs to the main evaluator, and the
// main broker that fans accepted inputs out to every fuzzer client.
package broker

import (
	"context"
	"strconv"
	"time"

	"github.com/cuemby/fuzzmux/pkg/codec"
	"github.com/cuemby/fuzzmux/pkg/metrics"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

// TightPollInterval is the poll period broker_loop uses in tight mode.
const TightPollInterval = 5 * time.Millisecond

// DefaultStallTimeout is the stall window in timeout mode before a soft
// tick is delivered to the hook with no message.
const DefaultStallTimeout = 30 * time.Second

// DispatchPolicy decides, for one incoming frame, whether the broker
// should consume it (Handled) or broadcast it verbatim (ForwardToClients).
type DispatchPolicy func(compressor codec.Codec, tag wire.Tag, flags wire.Flags, payload []byte) transport.DispatchResult

// Run wraps transport's Loop with a DispatchPolicy, converting it into the
// Hook shape transport.Broker.Loop expects. Both CentralizedBroker and
// StatsBroker share this loop; they differ only in policy.
func Run(ctx context.Context, tb transport.Broker, policy DispatchPolicy, compressor codec.Codec, pollInterval, stallTimeout time.Duration) error {
	hook := func(clientID uint32, tag wire.Tag, flags wire.Flags, payload []byte) transport.DispatchResult {
		if clientID == 0 && payload == nil {
			metrics.BrokerStallTicksTotal.Inc()
			return policy(compressor, tag, flags, payload)
		}

		timer := metrics.NewTimer()
		result := policy(compressor, tag, flags, payload)
		timer.ObserveDuration(metrics.BrokerDispatchLatency)

		if result == transport.ForwardToClients {
			metrics.MessagesForwardedTotal.WithLabelValues(strconv.Itoa(int(tag))).Inc()
		} else {
			kind, err := wire.PeekKind(payload)
			label := "unknown"
			if err == nil {
				label = strconv.Itoa(int(kind))
			}
			metrics.MessagesHandledTotal.WithLabelValues(label).Inc()
		}

		metrics.AttachedClientsTotal.Set(float64(tb.AttachedClients()))
		return result
	}
	return tb.Loop(ctx, hook, pollInterval, stallTimeout)
}
