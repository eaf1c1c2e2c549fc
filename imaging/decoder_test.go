package imaging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ProducesExactDimensions(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		bpp    int
	}{
		{"32bpp square", 4, 4, 32},
		{"32bpp portrait", 3, 7, 32},
		{"24bpp", 5, 2, 24},
		{"16bpp", 2, 9, 16},
		{"single pixel", 1, 1, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make([]byte, ExpectedSize(tt.width, tt.height, tt.bpp))
			img, err := Decode(raw, tt.width, tt.height, tt.bpp, OrderRGBA)
			require.NoError(t, err)
			assert.Equal(t, tt.width, img.Bounds().Dx())
			assert.Equal(t, tt.height, img.Bounds().Dy())
		})
	}
}

func TestDecode_RejectsUndersizedBuffer(t *testing.T) {
	for _, bpp := range []int{16, 24, 32} {
		raw := make([]byte, ExpectedSize(10, 10, bpp)-1)
		img, err := Decode(raw, 10, 10, bpp, OrderRGBA)
		assert.Nil(t, img)
		assert.True(t, errors.Is(err, ErrDecode), "bpp %d: got %v", bpp, err)
	}
}

func TestDecode_RejectsGarbledHeader(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"overflowing product", 1<<32 - 1, 1<<32 - 1},
		{"huge width", MaxDimension + 1, 1},
		{"huge height", 1, MaxDimension + 1},
		{"negative", -4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				img, err := Decode(make([]byte, 16), tt.width, tt.height, 32, OrderRGBA)
				assert.Nil(t, img)
				assert.ErrorIs(t, err, ErrDecode)
			})
		})
	}
}

func TestExpectedSize_OutOfRange(t *testing.T) {
	assert.Equal(t, -1, ExpectedSize(1<<32-1, 1<<32-1, 32))
	assert.Equal(t, -1, ExpectedSize(0, 10, 32))
	assert.Equal(t, MaxDimension*4, ExpectedSize(MaxDimension, 1, 32))
}

func TestDecode_RejectsZeroDimensions(t *testing.T) {
	_, err := Decode(make([]byte, 64), 0, 4, 32, OrderRGBA)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Decode(make([]byte, 64), 4, 0, 32, OrderRGBA)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecode_RejectsUnsupportedDepth(t *testing.T) {
	_, err := Decode(make([]byte, 64), 2, 2, 8, OrderRGBA)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecode_AcceptsOversizedBuffer(t *testing.T) {
	raw := make([]byte, ExpectedSize(2, 2, 32)+100)
	img, err := Decode(raw, 2, 2, 32, OrderRGBA)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestDecode_ChannelOrder(t *testing.T) {
	// one pixel: bytes 10, 20, 30, 40
	raw := []byte{10, 20, 30, 40}

	tests := []struct {
		order ChannelOrder
		want  [4]uint8 // r, g, b, a
	}{
		{OrderRGBA, [4]uint8{10, 20, 30, 40}},
		{OrderBGRA, [4]uint8{30, 20, 10, 40}},
		{OrderARGB, [4]uint8{20, 30, 40, 10}},
		{OrderABGR, [4]uint8{40, 30, 20, 10}},
	}

	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			img, err := Decode(raw, 1, 1, 32, tt.order)
			require.NoError(t, err)
			c := img.RGBAAt(0, 0)
			assert.Equal(t, tt.want, [4]uint8{c.R, c.G, c.B, c.A})
		})
	}
}

func TestDecode_RowMajor(t *testing.T) {
	// 2x2, each pixel red channel = index
	raw := []byte{
		0, 0, 0, 255, 1, 0, 0, 255,
		2, 0, 0, 255, 3, 0, 0, 255,
	}
	img, err := Decode(raw, 2, 2, 32, OrderRGBA)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(1), img.RGBAAt(1, 0).R)
	assert.Equal(t, uint8(2), img.RGBAAt(0, 1).R)
	assert.Equal(t, uint8(3), img.RGBAAt(1, 1).R)
}

func TestDecode_RGB565(t *testing.T) {
	// pure red 0xF800, little endian
	img, err := Decode([]byte{0x00, 0xF8}, 1, 1, 16, OrderRGBA)
	require.NoError(t, err)
	c := img.RGBAAt(0, 0)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(0), c.G)
	assert.Equal(t, uint8(0), c.B)
	assert.Equal(t, uint8(255), c.A)
}

func TestDecode_24bppBGR(t *testing.T) {
	img, err := Decode([]byte{1, 2, 3}, 1, 1, 24, OrderBGRA)
	require.NoError(t, err)
	c := img.RGBAAt(0, 0)
	assert.Equal(t, [4]uint8{3, 2, 1, 255}, [4]uint8{c.R, c.G, c.B, c.A})
}

func TestParseChannelOrder(t *testing.T) {
	o, err := ParseChannelOrder("BGRA")
	require.NoError(t, err)
	assert.Equal(t, OrderBGRA, o)

	o, err = ParseChannelOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderRGBA, o)

	_, err = ParseChannelOrder("yuv")
	assert.Error(t, err)
}
