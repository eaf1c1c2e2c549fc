package imaging

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrDecode is returned for malformed or undersized framebuffers
var ErrDecode = errors.New("framebuffer decode failed")

// ChannelOrder is the byte order of one pixel in the raw framebuffer.
// Emulator backends differ (redroid is usually RGBA, BlueStacks BGRA),
// so this comes from configuration and is never guessed.
type ChannelOrder string

const (
	OrderRGBA ChannelOrder = "rgba"
	OrderBGRA ChannelOrder = "bgra"
	OrderARGB ChannelOrder = "argb"
	OrderABGR ChannelOrder = "abgr"
)

// ParseChannelOrder validates a configured channel order
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch o := ChannelOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case OrderRGBA, OrderBGRA, OrderARGB, OrderABGR:
		return o, nil
	case "":
		return OrderRGBA, nil
	}
	return "", fmt.Errorf("unknown channel order %q (want rgba, bgra, argb or abgr)", s)
}

// offsets returns the byte index of R, G, B and A inside a 4-byte pixel
func (o ChannelOrder) offsets() (r, g, b, a int) {
	switch o {
	case OrderBGRA:
		return 2, 1, 0, 3
	case OrderARGB:
		return 1, 2, 3, 0
	case OrderABGR:
		return 3, 2, 1, 0
	default:
		return 0, 1, 2, 3
	}
}

// MaxDimension bounds either side of a decodable frame. Header values past
// it are treated as corrupt.
const MaxDimension = 16384

// ExpectedSize is the minimum buffer length for the given geometry. It
// returns -1 when a dimension is outside 1..MaxDimension.
func ExpectedSize(width, height, bpp int) int {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return -1
	}
	return width * height * (bpp / 8)
}

// Decode converts a raw row-major framebuffer into an RGBA image.
// Supported depths are 32 (four channels in the given order), 24 (three
// channels, opaque) and 16 (RGB565 little-endian).
func Decode(raw []byte, width, height, bpp int, order ChannelOrder) (*image.RGBA, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecode, width, height)
	}
	if bpp != 16 && bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("%w: unsupported bpp %d", ErrDecode, bpp)
	}
	expected := ExpectedSize(width, height, bpp)
	if len(raw) < expected {
		return nil, fmt.Errorf("%w: buffer too small: expected at least %d, got %d", ErrDecode, expected, len(raw))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	pix := img.Pix
	n := width * height

	switch bpp {
	case 32:
		if order == OrderRGBA || order == "" {
			copy(pix, raw[:expected])
			break
		}
		ri, gi, bi, ai := order.offsets()
		for i := 0; i < n; i++ {
			src := raw[i*4 : i*4+4]
			dst := pix[i*4 : i*4+4]
			dst[0], dst[1], dst[2], dst[3] = src[ri], src[gi], src[bi], src[ai]
		}
	case 24:
		ri, bi := 0, 2
		if order == OrderBGRA || order == OrderABGR {
			ri, bi = 2, 0
		}
		for i := 0; i < n; i++ {
			src := raw[i*3 : i*3+3]
			dst := pix[i*4 : i*4+4]
			dst[0], dst[1], dst[2], dst[3] = src[ri], src[1], src[bi], 0xff
		}
	case 16:
		for i := 0; i < n; i++ {
			v := uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
			r := uint8(v>>11) & 0x1f
			g := uint8(v>>5) & 0x3f
			b := uint8(v) & 0x1f
			dst := pix[i*4 : i*4+4]
			dst[0] = r<<3 | r>>2
			dst[1] = g<<2 | g>>4
			dst[2] = b<<3 | b>>2
			dst[3] = 0xff
		}
	}

	return img, nil
}
