package transport

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
)

// writeFramed sends buf prefixed with its length, the minimal length
// framing the transport layer is expected to add around a wire.Frame
// ("the transport layer adds its own length framing").
func writeFramed(conn net.Conn, buf []byte) error {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(buf)))
	if _, err := conn.Write(header); err != nil {
		return evmerr.Wrap(evmerr.Transport, "write frame length", err)
	}
	if _, err := conn.Write(buf); err != nil {
		return evmerr.Wrap(evmerr.Transport, "write frame body", err)
	}
	return nil
}

func readFramed(conn net.Conn) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header)
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
