package transport

import (
	"context"
	"net"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

// TCPClient is the concrete Client: a persistent connection to a TCPBroker
// plus one producer-owned Page standing in for this client's shared-memory
// slot. Every outgoing data frame is mirrored into the page before being
// sent on the wire so the page's sequence counter tracks "last message this
// client produced". AwaitSafeToUnmapBlocking does not read that counter; it
// waits on the broker's per-origin broadcast count instead.
type TCPClient struct {
	conn net.Conn
	id   uint32
	page *Page

	recvCh   chan wire.Frame
	unmapAck chan struct{}
	closed   chan struct{}
}

// Attach dials addr, completes the broker handshake, and maps a fresh page.
func Attach(addr string) (*TCPClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Transport, "dial broker", err)
	}

	hsBuf, err := readFramed(conn)
	if err != nil {
		conn.Close()
		return nil, evmerr.Wrap(evmerr.Transport, "read handshake", err)
	}
	hs, err := wire.Decode(hsBuf)
	if err != nil {
		conn.Close()
		return nil, evmerr.Wrap(evmerr.Serialize, "decode handshake", err)
	}

	page, err := NewPage("")
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &TCPClient{
		conn:     conn,
		id:       hs.ClientID,
		page:     page,
		recvCh:   make(chan wire.Frame, 256),
		unmapAck: make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// FromDescription reattaches to the broker named by d. The respawned
// process receives a fresh ClientId from the broker; callers that need to
// preserve identity across a respawn must track the old id separately
// (the abstract transport interface does not promise id stability across
// a true shared-memory reattach either).
func FromDescription(d Description) (*TCPClient, error) {
	return Attach(d.Addr)
}

func (c *TCPClient) readLoop() {
	for {
		buf, err := readFramed(c.conn)
		if err != nil {
			close(c.closed)
			return
		}
		frame, err := wire.Decode(buf)
		if err != nil {
			continue
		}

		if frame.Tag == wire.TagUnmapAck {
			c.SignalSafeToUnmap()
			continue
		}

		c.ackReceived(frame)

		select {
		case c.recvCh <- frame:
		case <-c.closed:
			return
		}
	}
}

// ackReceived echoes frame.Seq, the broker-stamped position of frame in
// frame.ClientID's broadcast stream, back to the broker as an ack. Using the
// broker's own counter rather than a locally-tallied receive count matters
// for any peer that attaches after the origin has already broadcast some
// messages: a local tally would start at zero and never reach the broker's
// true count, leaving that origin's unmap request blocked forever.
func (c *TCPClient) ackReceived(frame wire.Frame) {
	_ = c.sendControl(wire.TagAck, wire.EncodeAck(frame.ClientID, frame.Seq))
}

// sendControl writes a broker-facing control frame directly to the
// connection, bypassing the page: control frames are not part of this
// client's own produced sequence.
func (c *TCPClient) sendControl(tag wire.Tag, payload []byte) error {
	frame := wire.Frame{Tag: tag, Flags: wire.FlagInitialized, ClientID: c.id, Payload: payload}
	return writeFramed(c.conn, wire.Encode(frame))
}

func (c *TCPClient) ID() uint32 { return c.id }

func (c *TCPClient) SendBuf(tag wire.Tag, payload []byte) error {
	return c.SendBufWithFlags(tag, wire.FlagInitialized, payload)
}

func (c *TCPClient) SendBufWithFlags(tag wire.Tag, flags wire.Flags, payload []byte) error {
	frame := wire.Frame{
		Tag:      tag,
		Flags:    flags | wire.FlagInitialized,
		ClientID: c.id,
		Payload:  payload,
	}

	encoded := wire.Encode(frame)
	if err := c.page.Write(encoded); err != nil {
		return err
	}
	return writeFramed(c.conn, encoded)
}

func (c *TCPClient) RecvBufWithFlags() (*wire.Frame, bool, error) {
	select {
	case f := <-c.recvCh:
		return &f, true, nil
	default:
		return nil, false, nil
	}
}

func (c *TCPClient) Describe() (Description, error) {
	return Description{Addr: c.conn.RemoteAddr().String(), ClientID: c.id}, nil
}

// SignalSafeToUnmap is called by the owner once it has confirmed (via
// whatever side channel it trusts, e.g. a broker acknowledgement) that
// every consumer has advanced past this client's page.
func (c *TCPClient) SignalSafeToUnmap() {
	select {
	case c.unmapAck <- struct{}{}:
	default:
	}
}

func (c *TCPClient) AwaitSafeToUnmapBlocking(ctx context.Context) error {
	if err := c.sendControl(wire.TagUnmapReq, nil); err != nil {
		return evmerr.Wrap(evmerr.Transport, "send unmap request", err)
	}

	select {
	case <-c.unmapAck:
		return nil
	case <-c.closed:
		return evmerr.New(evmerr.ShuttingDown, "client closed before unmap ack")
	case <-ctx.Done():
		return evmerr.Wrap(evmerr.Transport, "await safe to unmap", ctx.Err())
	}
}

func (c *TCPClient) Close() error {
	if c.page != nil {
		_ = c.page.Unmap()
	}
	return c.conn.Close()
}
