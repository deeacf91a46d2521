package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Quantity returns the number of 16-bit registers a datatype occupies on the
// wire. Bit-table reads (coils, discrete inputs) always request one point.
func Quantity(datatype string) uint16 {
	switch strings.ToLower(strings.TrimSpace(datatype)) {
	case "uint32", "int32", "float32", "dword", "dint":
		return 2
	default:
		return 1
	}
}

// DecodeBit interprets a coil/discrete-input response. The driver packs bits
// LSB-first into the first byte.
func DecodeBit(data []byte) bool {
	return len(data) > 0 && data[0]&0x01 == 0x01
}

// DecodeValue converts raw register bytes into an engineering value.
//
// 16-bit values are read big-endian as transmitted. For 32-bit values the
// word order ("AB" = first register is the high word, "BA" = word-swapped)
// is applied first, then the byte order ("LittleEndian" swaps the bytes
// within each word). Scale and offset are applied last:
//
//	value = raw*scale + offset
//
// An unknown datatype yields NaN so the dashboard shows the bad
// configuration instead of a plausible-looking zero.
func DecodeValue(data []byte, datatype, byteOrder, wordOrder string, scale, offset float64) (raw, value float64, err error) {
	if scale == 0 {
		scale = 1.0
	}
	apply := func(r float64) (float64, float64, error) {
		return r, r*scale + offset, nil
	}

	switch strings.ToLower(strings.TrimSpace(datatype)) {
	case "bool", "bit", "boolean":
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("bool: need 2 bytes, got %d", len(data))
		}
		b := binary.BigEndian.Uint16(data[:2])
		if b != 0 {
			return apply(1)
		}
		return apply(0)

	case "uint16", "word", "ushort":
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("uint16: need 2 bytes, got %d", len(data))
		}
		return apply(float64(binary.BigEndian.Uint16(data[:2])))

	case "int16", "short":
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("int16: need 2 bytes, got %d", len(data))
		}
		return apply(float64(int16(binary.BigEndian.Uint16(data[:2]))))

	case "uint32", "dword":
		u, err := read32(data, byteOrder, wordOrder)
		if err != nil {
			return 0, 0, err
		}
		return apply(float64(u))

	case "int32", "dint":
		u, err := read32(data, byteOrder, wordOrder)
		if err != nil {
			return 0, 0, err
		}
		return apply(float64(int32(u)))

	case "float32", "float", "real":
		u, err := read32(data, byteOrder, wordOrder)
		if err != nil {
			return 0, 0, err
		}
		return apply(float64(math.Float32frombits(u)))

	default:
		return math.NaN(), math.NaN(), nil
	}
}

// EncodeRegister inverts the decode transform for writable single-register
// datatypes: raw = (value - offset) / scale, rounded to the nearest integer.
// 32-bit datatypes span two registers and are rejected; writes stay limited
// to what a single Modbus write request can express.
func EncodeRegister(value float64, datatype string, scale, offset float64) (uint16, error) {
	if scale == 0 {
		scale = 1.0
	}
	raw := math.Round((value - offset) / scale)

	switch strings.ToLower(strings.TrimSpace(datatype)) {
	case "bool", "bit", "boolean":
		if raw != 0 {
			return 1, nil
		}
		return 0, nil

	case "uint16", "word", "ushort":
		if raw < 0 || raw > math.MaxUint16 {
			return 0, fmt.Errorf("value %g out of uint16 range after scaling", value)
		}
		return uint16(raw), nil

	case "int16", "short":
		if raw < math.MinInt16 || raw > math.MaxInt16 {
			return 0, fmt.Errorf("value %g out of int16 range after scaling", value)
		}
		return uint16(int16(raw)), nil

	default:
		return 0, fmt.Errorf("datatype %q is not writable", datatype)
	}
}

// read32 assembles two registers into a 32-bit value honoring the device's
// word and byte order settings.
func read32(data []byte, byteOrder, wordOrder string) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("32-bit value: need 4 bytes, got %d", len(data))
	}
	var b [4]byte
	copy(b[:], data[:4])

	if strings.EqualFold(strings.TrimSpace(wordOrder), "BA") {
		b[0], b[1], b[2], b[3] = b[2], b[3], b[0], b[1]
	}
	if strings.EqualFold(strings.TrimSpace(byteOrder), "LittleEndian") {
		b[0], b[1], b[2], b[3] = b[1], b[0], b[3], b[2]
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
