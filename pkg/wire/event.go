package wire

import (
	"encoding/binary"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
	"github.com/cuemby/fuzzmux/pkg/fuzzcore"
)

// EventKind is the tag byte identifying which Event variant a serialized
// record carries.
type EventKind byte

const (
	KindNewTestcase EventKind = iota + 1
	KindUpdateExecStats
	KindObjective
	KindLog
	KindCustomBuf
)

// Event is the tagged sum type carried as frame payload on TagToMain.
// Only NewTestcase and UpdateExecStats are interpreted by the centralized
// path; the rest are opaque and passed through to the inner manager.
type Event interface {
	Kind() EventKind
}

// NewTestcase is the only variant carrying a candidate input.
type NewTestcase struct {
	Input        []byte
	ClientConfig string
	ExitKind     fuzzcore.ExitKind
	CorpusSize   uint64
	ObserversBuf []byte // nil means absent
	Time         uint64
	Executions   uint64
	ForwardID    *uint32 // nil means None
}

func (NewTestcase) Kind() EventKind { return KindNewTestcase }

// UpdateExecStats is the heartbeat variant; it carries no payload the
// centralized broker acts on, and the broker consumes it without
// forwarding it.
type UpdateExecStats struct {
	Time       uint64
	Executions uint64
}

func (UpdateExecStats) Kind() EventKind { return KindUpdateExecStats }

// Objective, Log and CustomBuf are opaque to the centralized path: the
// broker and the centralized manager decode only as far as the tag byte
// and otherwise pass the payload through to the inner manager untouched.
type Objective struct{ Payload []byte }

func (Objective) Kind() EventKind { return KindObjective }

type Log struct{ Payload []byte }

func (Log) Kind() EventKind { return KindLog }

type CustomBuf struct{ Payload []byte }

func (CustomBuf) Kind() EventKind { return KindCustomBuf }

// PeekKind reads only the leading tag byte of a serialized Event without
// decoding the rest, matching the broker's "deserialize only as far as the
// tag byte" fast path for opaque variants.
func PeekKind(buf []byte) (EventKind, error) {
	if len(buf) < 1 {
		return 0, evmerr.New(evmerr.Serialize, "empty event payload")
	}
	return EventKind(buf[0]), nil
}

// Serialize encodes an Event into its self-describing binary form.
func Serialize(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case NewTestcase:
		return serializeNewTestcase(e), nil
	case UpdateExecStats:
		return serializeUpdateExecStats(e), nil
	case Objective:
		return serializeOpaque(KindObjective, e.Payload), nil
	case Log:
		return serializeOpaque(KindLog, e.Payload), nil
	case CustomBuf:
		return serializeOpaque(KindCustomBuf, e.Payload), nil
	default:
		return nil, evmerr.New(evmerr.Serialize, "unknown event variant")
	}
}

// Deserialize decodes a buffer previously produced by Serialize.
func Deserialize(buf []byte) (Event, error) {
	kind, err := PeekKind(buf)
	if err != nil {
		return nil, err
	}
	body := buf[1:]

	switch kind {
	case KindNewTestcase:
		return deserializeNewTestcase(body)
	case KindUpdateExecStats:
		return deserializeUpdateExecStats(body)
	case KindObjective:
		return Objective{Payload: cloneBytes(body)}, nil
	case KindLog:
		return Log{Payload: cloneBytes(body)}, nil
	case KindCustomBuf:
		return CustomBuf{Payload: cloneBytes(body)}, nil
	default:
		return nil, evmerr.New(evmerr.Serialize, "unrecognized event kind byte")
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func putUint64(buf []byte, off int, v uint64) int {
	binary.LittleEndian.PutUint64(buf[off:off+8], v)
	return off + 8
}

func putUint32(buf []byte, off int, v uint32) int {
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
	return off + 4
}

func putBytes(buf []byte, off int, b []byte) int {
	off = putUint32(buf, off, uint32(len(b)))
	copy(buf[off:], b)
	return off + len(b)
}

func lenPrefixedSize(b []byte) int { return 4 + len(b) }

func serializeOpaque(kind EventKind, payload []byte) []byte {
	buf := make([]byte, 1+lenPrefixedSize(payload))
	buf[0] = byte(kind)
	putBytes(buf, 1, payload)
	return buf
}

// serializeNewTestcase lays out:
// tag(1) | input(len+bytes) | client_config(len+bytes) | exit_kind(1) |
// corpus_size(8) | has_observers(1) | observers_buf(len+bytes)? |
// time(8) | executions(8) | has_forward_id(1) | forward_id(4)?
func serializeNewTestcase(e NewTestcase) []byte {
	size := 1 + lenPrefixedSize(e.Input) + lenPrefixedSize([]byte(e.ClientConfig)) + 1 + 8 + 1
	if e.ObserversBuf != nil {
		size += lenPrefixedSize(e.ObserversBuf)
	}
	size += 8 + 8 + 1
	if e.ForwardID != nil {
		size += 4
	}

	buf := make([]byte, size)
	off := 0
	buf[off] = byte(KindNewTestcase)
	off++

	off = putBytes(buf, off, e.Input)
	off = putBytes(buf, off, []byte(e.ClientConfig))

	buf[off] = exitKindByte(e.ExitKind)
	off++

	off = putUint64(buf, off, e.CorpusSize)

	if e.ObserversBuf != nil {
		buf[off] = 1
		off++
		off = putBytes(buf, off, e.ObserversBuf)
	} else {
		buf[off] = 0
		off++
	}

	off = putUint64(buf, off, e.Time)
	off = putUint64(buf, off, e.Executions)

	if e.ForwardID != nil {
		buf[off] = 1
		off++
		off = putUint32(buf, off, *e.ForwardID)
	} else {
		buf[off] = 0
		off++
	}

	return buf
}

func serializeUpdateExecStats(e UpdateExecStats) []byte {
	buf := make([]byte, 1+8+8)
	buf[0] = byte(KindUpdateExecStats)
	off := 1
	off = putUint64(buf, off, e.Time)
	putUint64(buf, off, e.Executions)
	return buf
}

func exitKindByte(k fuzzcore.ExitKind) byte {
	switch k {
	case fuzzcore.ExitOk:
		return 0
	case fuzzcore.ExitCrash:
		return 1
	case fuzzcore.ExitTimeout:
		return 2
	case fuzzcore.ExitOom:
		return 3
	default:
		return 0
	}
}

func exitKindFromByte(b byte) fuzzcore.ExitKind {
	switch b {
	case 1:
		return fuzzcore.ExitCrash
	case 2:
		return fuzzcore.ExitTimeout
	case 3:
		return fuzzcore.ExitOom
	default:
		return fuzzcore.ExitOk
	}
}

func readBytes(buf []byte, off int) ([]byte, int, error) {
	if off+4 > len(buf) {
		return nil, 0, evmerr.New(evmerr.Serialize, "truncated length prefix")
	}
	n := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if off+n > len(buf) {
		return nil, 0, evmerr.New(evmerr.Serialize, "truncated byte field")
	}
	return cloneBytes(buf[off : off+n]), off + n, nil
}

func readUint64(buf []byte, off int) (uint64, int, error) {
	if off+8 > len(buf) {
		return 0, 0, evmerr.New(evmerr.Serialize, "truncated u64 field")
	}
	return binary.LittleEndian.Uint64(buf[off : off+8]), off + 8, nil
}

func readUint32(buf []byte, off int) (uint32, int, error) {
	if off+4 > len(buf) {
		return 0, 0, evmerr.New(evmerr.Serialize, "truncated u32 field")
	}
	return binary.LittleEndian.Uint32(buf[off : off+4]), off + 4, nil
}

func deserializeNewTestcase(buf []byte) (Event, error) {
	var e NewTestcase
	var err error
	off := 0

	e.Input, off, err = readBytes(buf, off)
	if err != nil {
		return nil, err
	}

	cc, off2, err := readBytes(buf, off)
	if err != nil {
		return nil, err
	}
	e.ClientConfig = string(cc)
	off = off2

	if off+1 > len(buf) {
		return nil, evmerr.New(evmerr.Serialize, "truncated exit_kind byte")
	}
	e.ExitKind = exitKindFromByte(buf[off])
	off++

	e.CorpusSize, off, err = readUint64(buf, off)
	if err != nil {
		return nil, err
	}

	if off+1 > len(buf) {
		return nil, evmerr.New(evmerr.Serialize, "truncated has_observers byte")
	}
	hasObservers := buf[off]
	off++
	if hasObservers == 1 {
		e.ObserversBuf, off, err = readBytes(buf, off)
		if err != nil {
			return nil, err
		}
	}

	e.Time, off, err = readUint64(buf, off)
	if err != nil {
		return nil, err
	}
	e.Executions, off, err = readUint64(buf, off)
	if err != nil {
		return nil, err
	}

	if off+1 > len(buf) {
		return nil, evmerr.New(evmerr.Serialize, "truncated has_forward_id byte")
	}
	hasForwardID := buf[off]
	off++
	if hasForwardID == 1 {
		var id uint32
		id, off, err = readUint32(buf, off)
		if err != nil {
			return nil, err
		}
		e.ForwardID = &id
	}

	return e, nil
}

func deserializeUpdateExecStats(buf []byte) (Event, error) {
	t, off, err := readUint64(buf, 0)
	if err != nil {
		return nil, err
	}
	execs, _, err := readUint64(buf, off)
	if err != nil {
		return nil, err
	}
	return UpdateExecStats{Time: t, Executions: execs}, nil
}
