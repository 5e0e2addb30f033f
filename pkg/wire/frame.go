// Package wire implements the frame format and Event tagged union used on
// the shared-memory transport: tag/flags/client_id/payload frames, and the
// self-describing binary encoding of Event variants carried as payload.
package wire

import (
	"encoding/binary"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
)

// Tag is the 32-bit routing key on the shared-memory transport.
type Tag uint32

// TagToMain is the one reserved tag: messages on this tag are centrally
// routed by the broker instead of being forwarded verbatim.
const TagToMain Tag = 0x03453453

// TagAck and TagUnmapReq/TagUnmapAck are reserved tags used only between a
// client and the broker it is directly attached to; they never appear in
// an Event payload and a Hook never sees them. A receiving client acks
// every broadcast frame it consumes with TagAck so the broker can track,
// per origin client, which currently attached peers have caught up to its
// latest broadcast message. TagUnmapReq asks the broker to reply with
// TagUnmapAck once every other attached peer has acked that watermark,
// which is what unblocks AwaitSafeToUnmapBlocking.
const (
	TagAck      Tag = 0xfffffffe
	TagUnmapReq Tag = 0xfffffffd
	TagUnmapAck Tag = 0xfffffffc
)

// EncodeAck lays out an acking peer's claim that it has now consumed
// originID's broadcast sequence number seq.
func EncodeAck(originID uint32, seq uint64) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], originID)
	binary.LittleEndian.PutUint64(buf[4:12], seq)
	return buf
}

// DecodeAck parses a payload previously produced by EncodeAck.
func DecodeAck(buf []byte) (originID uint32, seq uint64, err error) {
	if len(buf) < 12 {
		return 0, 0, evmerr.New(evmerr.Serialize, "ack payload shorter than header")
	}
	originID = binary.LittleEndian.Uint32(buf[0:4])
	seq = binary.LittleEndian.Uint64(buf[4:12])
	return originID, seq, nil
}

// Flags is a bit field carried in every frame.
type Flags uint32

const (
	// FlagInitialized is always set by the sender.
	FlagInitialized Flags = 1 << iota
	// FlagCompressed marks the payload as gzip-compressed; the receiver
	// must inflate it before deserializing an Event.
	FlagCompressed
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Frame is the wire-level envelope: tag, flags, client_id, an
// origin-broadcast sequence number, and an opaque payload. The transport
// layer adds its own length framing around this.
//
// Seq is meaningless on a frame a client sends to the broker; the broker
// stamps it on every frame it broadcasts with the origin's running
// broadcast count, so a receiving peer's ack always refers to a position
// in the origin's global broadcast stream rather than to how many of the
// origin's messages that particular peer has personally seen (which
// would undercount for any peer that attached after the stream started).
type Frame struct {
	Tag      Tag
	Flags    Flags
	ClientID uint32
	Seq      uint64
	Payload  []byte
}

// frameHeaderSize is the byte length of the fixed-size part of a frame:
// three little-endian u32 fields plus one u64, before the payload.
const frameHeaderSize = 4 + 4 + 4 + 8

// Encode serializes f as tag|flags|client_id|seq|payload, all fixed-endian.
func Encode(f Frame) []byte {
	buf := make([]byte, frameHeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.Tag))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.Flags))
	binary.LittleEndian.PutUint32(buf[8:12], f.ClientID)
	binary.LittleEndian.PutUint64(buf[12:20], f.Seq)
	copy(buf[frameHeaderSize:], f.Payload)
	return buf
}

// Decode parses a frame previously produced by Encode.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < frameHeaderSize {
		return Frame{}, evmerr.New(evmerr.Serialize, "frame shorter than header")
	}
	f := Frame{
		Tag:      Tag(binary.LittleEndian.Uint32(buf[0:4])),
		Flags:    Flags(binary.LittleEndian.Uint32(buf[4:8])),
		ClientID: binary.LittleEndian.Uint32(buf[8:12]),
		Seq:      binary.LittleEndian.Uint64(buf[12:20]),
	}
	if len(buf) > frameHeaderSize {
		f.Payload = append([]byte(nil), buf[frameHeaderSize:]...)
	}
	return f, nil
}
