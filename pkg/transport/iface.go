// Package transport implements the abstract reliable tagged-byte-message
// channel the centralized core depends on, plus one concrete
// binding: a TCP bootstrap for delivery and a memory-mapped scratch page
// per client standing in for the shared-memory ring buffer the real
// transport would use.
package transport

import (
	"context"
	"time"

	"github.com/cuemby/fuzzmux/pkg/wire"
)

// DispatchResult is what a broker Hook decides for an incoming message.
type DispatchResult int

const (
	// Handled means the broker consumed the message; it is not broadcast.
	Handled DispatchResult = iota
	// ForwardToClients means the broker should broadcast the frame
	// verbatim to every attached client.
	ForwardToClients
)

// Hook is invoked by Broker.Loop for every message the broker receives,
// and once per stall tick with clientID 0 and a nil payload.
type Hook func(clientID uint32, tag wire.Tag, flags wire.Flags, payload []byte) DispatchResult

// Broker is the broker half of the transport: it accepts client
// attachments and runs a dispatch loop.
type Broker interface {
	// Bind starts listening for client attachments.
	Bind(addr string) error
	// SetExitCleanlyAfter arranges for the broker to exit once at least n
	// clients have attached and then all have disconnected.
	SetExitCleanlyAfter(n int)
	// Loop runs the dispatch loop until ctx is cancelled or Close is
	// called. pollInterval paces the tight-mode poll; stallTimeout, if
	// nonzero, delivers a soft tick to hook when no message has arrived
	// within that window.
	Loop(ctx context.Context, hook Hook, pollInterval, stallTimeout time.Duration) error
	Close() error
	// AttachedClients reports how many clients are currently attached.
	AttachedClients() int
}

// Client is the client half of the transport.
type Client interface {
	ID() uint32
	SendBuf(tag wire.Tag, payload []byte) error
	SendBufWithFlags(tag wire.Tag, flags wire.Flags, payload []byte) error
	// RecvBufWithFlags is non-blocking: ok is false when no message is
	// currently queued.
	RecvBufWithFlags() (frame *wire.Frame, ok bool, err error)
	Describe() (Description, error)
	// AwaitSafeToUnmapBlocking blocks until the broker confirms every
	// attached peer has advanced past this client's last shared page,
	// i.e. it is safe to unmap and exit.
	AwaitSafeToUnmapBlocking(ctx context.Context) error
	Close() error
}
