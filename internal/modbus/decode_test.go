package modbus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValue16Bit(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		datatype string
		scale    float64
		offset   float64
		wantRaw  float64
		want     float64
	}{
		{"uint16 plain", []byte{0x01, 0x00}, "uint16", 1, 0, 256, 256},
		{"word alias", []byte{0x00, 0x0A}, "word", 1, 0, 10, 10},
		{"uint16 scaled", []byte{0x00, 0x64}, "uint16", 0.1, 0, 100, 10},
		{"uint16 offset", []byte{0x00, 0x64}, "uint16", 1, -40, 100, 60},
		{"int16 negative", []byte{0xFF, 0xFF}, "int16", 1, 0, -1, -1},
		{"short alias", []byte{0x80, 0x00}, "short", 1, 0, -32768, -32768},
		{"bool nonzero", []byte{0x00, 0x05}, "bool", 1, 0, 1, 1},
		{"bool zero", []byte{0x00, 0x00}, "bool", 1, 0, 0, 0},
		{"zero scale treated as identity", []byte{0x00, 0x07}, "uint16", 0, 0, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, value, err := DecodeValue(tt.data, tt.datatype, "BigEndian", "AB", tt.scale, tt.offset)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantRaw, raw, 1e-9)
			assert.InDelta(t, tt.want, value, 1e-9)
		})
	}
}

func TestDecodeValue32Bit(t *testing.T) {
	// 0x40490FDB is float32(3.14159...).
	pi := []byte{0x40, 0x49, 0x0F, 0xDB}

	tests := []struct {
		name      string
		data      []byte
		datatype  string
		byteOrder string
		wordOrder string
		want      float64
	}{
		{"uint32 AB", []byte{0x00, 0x01, 0x00, 0x00}, "uint32", "BigEndian", "AB", 65536},
		{"uint32 BA word swap", []byte{0x00, 0x00, 0x00, 0x01}, "uint32", "BigEndian", "BA", 65536},
		{"dword alias", []byte{0x00, 0x00, 0x01, 0x00}, "dword", "BigEndian", "AB", 256},
		{"int32 negative", []byte{0xFF, 0xFF, 0xFF, 0xFE}, "int32", "BigEndian", "AB", -2},
		{"dint alias", []byte{0xFF, 0xFF, 0xFF, 0xFF}, "dint", "BigEndian", "AB", -1},
		{"float32 pi", pi, "float32", "BigEndian", "AB", float64(math.Float32frombits(0x40490FDB))},
		{"real alias pi word swapped", []byte{0x0F, 0xDB, 0x40, 0x49}, "real", "BigEndian", "BA", float64(math.Float32frombits(0x40490FDB))},
		{"uint32 little endian bytes", []byte{0x01, 0x00, 0x00, 0x00}, "uint32", "LittleEndian", "AB", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, value, err := DecodeValue(tt.data, tt.datatype, tt.byteOrder, tt.wordOrder, 1, 0)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, value, 1e-6)
		})
	}
}

func TestDecodeValueUnknownDatatype(t *testing.T) {
	raw, value, err := DecodeValue([]byte{0x00, 0x01}, "string42", "BigEndian", "AB", 1, 0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(raw))
	assert.True(t, math.IsNaN(value))
}

func TestDecodeValueShortBuffer(t *testing.T) {
	_, _, err := DecodeValue([]byte{0x01}, "uint16", "BigEndian", "AB", 1, 0)
	assert.Error(t, err)

	_, _, err = DecodeValue([]byte{0x01, 0x02}, "uint32", "BigEndian", "AB", 1, 0)
	assert.Error(t, err)
}

func TestDecodeBit(t *testing.T) {
	assert.True(t, DecodeBit([]byte{0x01}))
	assert.False(t, DecodeBit([]byte{0x00}))
	assert.False(t, DecodeBit([]byte{0x02})) // only the LSB counts
	assert.False(t, DecodeBit(nil))
}

func TestQuantity(t *testing.T) {
	assert.Equal(t, uint16(2), Quantity("uint32"))
	assert.Equal(t, uint16(2), Quantity("float32"))
	assert.Equal(t, uint16(2), Quantity("dint"))
	assert.Equal(t, uint16(1), Quantity("uint16"))
	assert.Equal(t, uint16(1), Quantity("bool"))
	assert.Equal(t, uint16(1), Quantity("mystery"))
}
