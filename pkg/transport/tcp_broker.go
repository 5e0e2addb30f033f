package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
	"github.com/cuemby/fuzzmux/pkg/log"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

type inboundMsg struct {
	clientID uint32
	frame    wire.Frame
}

// TCPBroker is the concrete Broker: a raw TCP listener doing the single
// TCP bootstrap used to discover the shared-memory broker, plus
// in-process fan-out to every attached client. Framing is a 4-byte
// little-endian length prefix around each encoded wire.Frame, the same
// raw-socket idiom used elsewhere in this codebase rather than a
// generated RPC stack.
type TCPBroker struct {
	mu           sync.Mutex
	ln           net.Listener
	clients      map[uint32]net.Conn
	nextID       uint32
	attachedEver int
	exitAfter    int

	// broadcastSeq[origin] counts messages broadcast on origin's behalf.
	// peerAcked[origin][peer] is the highest such sequence peer has acked.
	// pendingUnmap[origin] is set while origin is waiting on a
	// TagUnmapAck; checkUnmapLocked clears it once every other attached
	// client has caught up to broadcastSeq[origin].
	broadcastSeq map[uint32]uint64
	peerAcked    map[uint32]map[uint32]uint64
	pendingUnmap map[uint32]bool

	inbound   chan inboundMsg
	closed    chan struct{}
	closeOnce sync.Once
}

// NewTCPBroker returns an unbound broker; call Bind before Loop.
func NewTCPBroker() *TCPBroker {
	return &TCPBroker{
		clients:      make(map[uint32]net.Conn),
		broadcastSeq: make(map[uint32]uint64),
		peerAcked:    make(map[uint32]map[uint32]uint64),
		pendingUnmap: make(map[uint32]bool),
		inbound:      make(chan inboundMsg, 256),
		closed:       make(chan struct{}),
	}
}

func (b *TCPBroker) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return evmerr.Wrap(evmerr.Transport, "bind broker port", err)
	}
	b.ln = ln
	go b.acceptLoop()
	return nil
}

// Addr returns the address the broker is listening on, useful when Bind
// was called with port 0 and the OS chose one.
func (b *TCPBroker) Addr() string {
	return b.ln.Addr().String()
}

// AttachedClients implements Broker.
func (b *TCPBroker) AttachedClients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *TCPBroker) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.attach(conn)
	}
}

func (b *TCPBroker) attach(conn net.Conn) {
	id := atomic.AddUint32(&b.nextID, 1)

	b.mu.Lock()
	b.clients[id] = conn
	b.attachedEver++
	b.mu.Unlock()

	handshake := wire.Encode(wire.Frame{Tag: 0, Flags: wire.FlagInitialized, ClientID: id})
	if err := writeFramed(conn, handshake); err != nil {
		log.WithComponent("broker").Warn().Err(err).Msg("handshake failed")
		b.detach(id)
		return
	}

	go b.readLoop(id, conn)
}

func (b *TCPBroker) readLoop(id uint32, conn net.Conn) {
	for {
		buf, err := readFramed(conn)
		if err != nil {
			b.detach(id)
			return
		}
		frame, err := wire.Decode(buf)
		if err != nil {
			continue
		}

		switch frame.Tag {
		case wire.TagAck:
			b.handleAck(id, frame.Payload)
			continue
		case wire.TagUnmapReq:
			b.handleUnmapReq(id)
			continue
		}

		select {
		case b.inbound <- inboundMsg{clientID: id, frame: frame}:
		case <-b.closed:
			return
		}
	}
}

// handleAck records that peerID has now consumed originID's broadcast
// messages up to seq, and unblocks originID's pending unmap if this was
// the last peer it was waiting on.
func (b *TCPBroker) handleAck(peerID uint32, payload []byte) {
	originID, seq, err := wire.DecodeAck(payload)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.peerAcked[originID] == nil {
		b.peerAcked[originID] = make(map[uint32]uint64)
	}
	if seq > b.peerAcked[originID][peerID] {
		b.peerAcked[originID][peerID] = seq
	}
	b.checkUnmapLocked(originID)
}

// handleUnmapReq marks id as awaiting a TagUnmapAck and checks whether it
// can be satisfied immediately (e.g. because id has no attached peers).
func (b *TCPBroker) handleUnmapReq(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pendingUnmap[id] = true
	b.checkUnmapLocked(id)
}

// checkUnmapLocked sends originID a TagUnmapAck and clears its pending
// request once every other currently attached client has acked at least
// broadcastSeq[originID]. Caller must hold b.mu.
func (b *TCPBroker) checkUnmapLocked(originID uint32) {
	if !b.pendingUnmap[originID] {
		return
	}

	target := b.broadcastSeq[originID]
	for peerID := range b.clients {
		if peerID == originID {
			continue
		}
		if b.peerAcked[originID][peerID] < target {
			return
		}
	}

	conn, ok := b.clients[originID]
	if !ok {
		delete(b.pendingUnmap, originID)
		return
	}

	ack := wire.Encode(wire.Frame{Tag: wire.TagUnmapAck, Flags: wire.FlagInitialized, ClientID: originID})
	if err := writeFramed(conn, ack); err != nil {
		log.WithClientID(originID).Warn().Err(err).Msg("unmap ack write failed")
	}
	delete(b.pendingUnmap, originID)
}

func (b *TCPBroker) detach(id uint32) {
	b.mu.Lock()
	if conn, ok := b.clients[id]; ok {
		conn.Close()
		delete(b.clients, id)
	}
	delete(b.broadcastSeq, id)
	delete(b.peerAcked, id)
	delete(b.pendingUnmap, id)
	for origin := range b.peerAcked {
		delete(b.peerAcked[origin], id)
	}
	// Losing a peer may be exactly what a pending unmap was waiting on.
	for origin := range b.pendingUnmap {
		b.checkUnmapLocked(origin)
	}
	remaining := len(b.clients)
	attachedEver := b.attachedEver
	exitAfter := b.exitAfter
	b.mu.Unlock()

	if exitAfter > 0 && attachedEver >= exitAfter && remaining == 0 {
		b.Close()
	}
}

// SetExitCleanlyAfter implements Broker.
func (b *TCPBroker) SetExitCleanlyAfter(n int) {
	b.mu.Lock()
	b.exitAfter = n
	b.mu.Unlock()
}

// Loop implements Broker. Supports both tight and timeout poll modes.
func (b *TCPBroker) Loop(ctx context.Context, hook Hook, pollInterval, stallTimeout time.Duration) error {
	for {
		var stall <-chan time.Time
		if stallTimeout > 0 {
			stall = time.After(stallTimeout)
		}

		select {
		case <-ctx.Done():
			return evmerr.New(evmerr.ShuttingDown, "broker loop cancelled")
		case <-b.closed:
			return evmerr.New(evmerr.ShuttingDown, "broker closed")
		case msg := <-b.inbound:
			result := hook(msg.clientID, msg.frame.Tag, msg.frame.Flags, msg.frame.Payload)
			if result == ForwardToClients {
				b.broadcast(msg.frame)
			}
		case <-stall:
			hook(0, 0, 0, nil)
		}

		if pollInterval > 0 {
			time.Sleep(pollInterval)
		}
	}
}

func (b *TCPBroker) broadcast(frame wire.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.broadcastSeq[frame.ClientID]++
	frame.Seq = b.broadcastSeq[frame.ClientID]
	raw := wire.Encode(frame)

	for id, conn := range b.clients {
		if id == frame.ClientID {
			continue
		}
		if err := writeFramed(conn, raw); err != nil {
			log.WithClientID(id).Warn().Err(err).Msg("broadcast write failed")
		}
	}
}

func (b *TCPBroker) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		if b.ln != nil {
			b.ln.Close()
		}
		b.mu.Lock()
		for _, c := range b.clients {
			c.Close()
		}
		b.clients = map[uint32]net.Conn{}
		b.mu.Unlock()
	})
	return nil
}
