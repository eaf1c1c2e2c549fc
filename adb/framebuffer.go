package adb

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// Framebuffer is one raw screen grab from the framebuffer: service
type Framebuffer struct {
	Version    uint32
	BPP        int
	ColorSpace uint32
	Width      int
	Height     int

	// Channel bit offsets as reported by the device, for diagnostics only
	RedOffset, GreenOffset, BlueOffset, AlphaOffset uint32

	Data []byte
}

// maxFramebufferSize bounds a single grab (8K RGBA)
const maxFramebufferSize = 7680 * 4320 * 4

// Framebuffer grabs the current screen contents of a device
func (c *Client) Framebuffer(ctx context.Context, serial string) (*Framebuffer, error) {
	conn, release, err := c.transport(ctx, serial)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := request(conn, "framebuffer:"); err != nil {
		return nil, fmt.Errorf("framebuffer: %w", err)
	}
	return readFramebuffer(conn)
}

func readFramebuffer(r io.Reader) (*Framebuffer, error) {
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read framebuffer version: %w", err)
	}

	var (
		fb   = &Framebuffer{Version: version}
		size uint32
	)

	switch version {
	case 16:
		// legacy RGB565: size, width, height
		var h [3]uint32
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return nil, fmt.Errorf("read legacy framebuffer header: %w", err)
		}
		size = h[0]
		fb.Width, fb.Height, fb.BPP = int(h[1]), int(h[2]), 16
	case 1, 2:
		fields := 12
		if version == 2 {
			fields = 13
		}
		h := make([]uint32, fields)
		if err := binary.Read(r, binary.LittleEndian, h); err != nil {
			return nil, fmt.Errorf("read framebuffer header v%d: %w", version, err)
		}
		fb.BPP = int(h[0])
		if version == 2 {
			fb.ColorSpace = h[1]
			h = append(h[:1], h[2:]...)
		}
		size = h[1]
		fb.Width, fb.Height = int(h[2]), int(h[3])
		fb.RedOffset = h[4]
		fb.BlueOffset = h[6]
		fb.GreenOffset = h[8]
		fb.AlphaOffset = h[10]
	default:
		return nil, fmt.Errorf("%w: unsupported framebuffer version %d", ErrProtocol, version)
	}

	if size > maxFramebufferSize {
		return nil, fmt.Errorf("%w: framebuffer size %d too large", ErrProtocol, size)
	}

	fb.Data = make([]byte, size)
	if _, err := io.ReadFull(r, fb.Data); err != nil {
		return nil, fmt.Errorf("read framebuffer data: %w", err)
	}

	return fb, nil
}
