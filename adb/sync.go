package adb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

const maxSyncChunk = 64 * 1024

// Pull reads a file from the device through the sync: service
func (c *Client) Pull(ctx context.Context, serial, remotePath string) ([]byte, error) {
	conn, release, err := c.transport(ctx, serial)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := request(conn, "sync:"); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	if err := writeSyncRequest(conn, "RECV", remotePath); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return nil, fmt.Errorf("read sync header: %w", err)
		}
		id := string(header[:4])
		n := binary.LittleEndian.Uint32(header[4:])

		switch id {
		case "DATA":
			if n > maxSyncChunk {
				return nil, fmt.Errorf("%w: sync chunk of %d bytes", ErrProtocol, n)
			}
			if _, err := io.CopyN(&out, conn, int64(n)); err != nil {
				return nil, fmt.Errorf("read sync data: %w", err)
			}
		case "DONE":
			writeSyncRequest(conn, "QUIT", "")
			return out.Bytes(), nil
		case "FAIL":
			msg := make([]byte, n)
			if _, err := io.ReadFull(conn, msg); err != nil {
				return nil, fmt.Errorf("read sync failure: %w", err)
			}
			return nil, &FailError{Message: fmt.Sprintf("pull %s: %s", remotePath, msg)}
		default:
			return nil, fmt.Errorf("%w: unexpected sync id %q", ErrProtocol, id)
		}
	}
}

func writeSyncRequest(w io.Writer, id, arg string) error {
	buf := make([]byte, 8+len(arg))
	copy(buf, id)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(arg)))
	copy(buf[8:], arg)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("send sync %s: %w", id, err)
	}
	return nil
}
