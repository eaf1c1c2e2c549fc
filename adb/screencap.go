package adb

import (
	"encoding/binary"
	"fmt"

	"devicegateway/imaging"
)

// Screencap is the output of `screencap` without -p: a small header
// followed by raw pixels.
type Screencap struct {
	Width  int
	Height int
	Format uint32
	BPP    int
	Data   []byte
}

// ParseScreencap decodes raw screencap output. Android 9 and later add a
// 4-byte colorspace field, detected from the payload length.
func ParseScreencap(raw []byte) (*Screencap, error) {
	if len(raw) < 12 {
		return nil, fmt.Errorf("%w: screencap output too short (%d bytes)", ErrProtocol, len(raw))
	}

	sc := &Screencap{
		Width:  int(binary.LittleEndian.Uint32(raw[0:4])),
		Height: int(binary.LittleEndian.Uint32(raw[4:8])),
		Format: binary.LittleEndian.Uint32(raw[8:12]),
	}

	if sc.Width <= 0 || sc.Height <= 0 || sc.Width > imaging.MaxDimension || sc.Height > imaging.MaxDimension {
		return nil, fmt.Errorf("%w: screencap dimensions %dx%d out of range", ErrProtocol, sc.Width, sc.Height)
	}

	switch sc.Format {
	case 1, 2: // RGBA_8888, RGBX_8888
		sc.BPP = 32
	case 3: // RGB_888
		sc.BPP = 24
	case 4: // RGB_565
		sc.BPP = 16
	default:
		return nil, fmt.Errorf("%w: unsupported screencap pixel format %d", ErrProtocol, sc.Format)
	}

	pixels := sc.Width * sc.Height * (sc.BPP / 8)
	switch {
	case len(raw) >= 16+pixels:
		sc.Data = raw[16 : 16+pixels]
	case len(raw) >= 12+pixels:
		sc.Data = raw[12 : 12+pixels]
	default:
		sc.Data = raw[12:]
	}

	return sc, nil
}
