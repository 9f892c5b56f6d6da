// Package mutf8 implements the "modified UTF-8" encoding used by Java class
// files and by DataOutput.writeUTF.
//
// It differs from standard UTF-8 in two ways: U+0000 is encoded as the two
// bytes C0 80, and supplementary characters are encoded as a surrogate pair
// of three-byte sequences instead of one four-byte sequence.
package mutf8

import (
	"errors"
	"unicode/utf16"
)

// ErrInvalid is returned when a byte sequence is not valid modified UTF-8.
var ErrInvalid = errors.New("mutf8: invalid encoding")

// Encode returns the modified UTF-8 encoding of s.
func Encode(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units))
	for _, u := range units {
		switch {
		case u >= 0x0001 && u <= 0x007F:
			out = append(out, byte(u))
		case u <= 0x07FF:
			out = append(out,
				0xC0|byte(u>>6),
				0x80|byte(u&0x3F))
		default:
			out = append(out,
				0xE0|byte(u>>12),
				0x80|byte((u>>6)&0x3F),
				0x80|byte(u&0x3F))
		}
	}
	return out
}

// Len returns the number of bytes Encode(s) would produce.
func Len(s string) int {
	n := 0
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u >= 0x0001 && u <= 0x007F:
			n++
		case u <= 0x07FF:
			n += 2
		default:
			n += 3
		}
	}
	return n
}

// Decode converts modified UTF-8 bytes to a Go string.
func Decode(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", ErrInvalid
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", ErrInvalid
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", ErrInvalid
		}
	}
	return string(utf16.Decode(units)), nil
}
