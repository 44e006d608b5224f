// Package binary provides little endian field helpers for fixed layout
// account and instruction data. Every helper reads or writes at *offset and
// advances it past the field.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"
)

func PutUint8(dst []byte, v uint8, offset *int) {
	dst[*offset] = v
	*offset += 1
}

func PutUint32(dst []byte, v uint32, offset *int) {
	binary.LittleEndian.PutUint32(dst[*offset:], v)
	*offset += 4
}

func PutUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst[*offset:], v)
	*offset += 8
}

func PutBool(dst []byte, v bool, offset *int) {
	var b uint8
	if v {
		b = 1
	}
	PutUint8(dst, b, offset)
}

func PutKey32(dst []byte, key ed25519.PublicKey, offset *int) {
	copy(dst[*offset:*offset+ed25519.PublicKeySize], key)
	*offset += ed25519.PublicKeySize
}

func PutBytes(dst []byte, b []byte, offset *int) {
	*offset += copy(dst[*offset:], b)
}

func GetUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[*offset]
	*offset += 1
}

func GetUint32(src []byte, dst *uint32, offset *int) {
	*dst = binary.LittleEndian.Uint32(src[*offset:])
	*offset += 4
}

func GetUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src[*offset:])
	*offset += 8
}

func GetBool(src []byte, dst *bool, offset *int) {
	var b uint8
	GetUint8(src, &b, offset)
	*dst = b != 0
}

func GetKey32(src []byte, dst *ed25519.PublicKey, offset *int) {
	*dst = make([]byte, ed25519.PublicKeySize)
	copy(*dst, src[*offset:*offset+ed25519.PublicKeySize])
	*offset += ed25519.PublicKeySize
}
