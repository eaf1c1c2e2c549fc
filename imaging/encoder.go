package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// DefaultJPEGQuality keeps a 720p frame around 60-120 KB
const DefaultJPEGQuality = 75

// Encoder compresses frames with a format and quality fixed at construction
type Encoder struct {
	format  Format
	quality int
}

func NewEncoder(format string, quality int) (*Encoder, error) {
	f := Format(strings.ToLower(strings.TrimSpace(format)))
	switch f {
	case "", "jpg", FormatJPEG:
		f = FormatJPEG
	case FormatPNG:
	default:
		return nil, fmt.Errorf("unsupported image format %q (want jpeg or png)", format)
	}

	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality must be 1-100, got %d", quality)
	}

	return &Encoder{format: f, quality: quality}, nil
}

func (e *Encoder) Format() Format {
	return e.format
}

// MIME returns the content type of encoded payloads
func (e *Encoder) MIME() string {
	return "image/" + string(e.format)
}

// Extension returns the file extension without the dot
func (e *Encoder) Extension() string {
	if e.format == FormatJPEG {
		return "jpg"
	}
	return string(e.format)
}

func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	switch e.format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("png encode failed: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode failed: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DataURL formats a payload the way browsers accept it in an <img> src
func DataURL(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}
