// Package shortvec implements the compact-u16 length prefix used by Solana's
// wire format.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

const maxEncodedLen = 3

var (
	ErrLengthOverflow  = errors.New("length exceeds max uint16")
	ErrNonCanonical    = errors.New("non canonical shortvec encoding")
	ErrEncodingTooLong = errors.New("shortvec encoding exceeds 3 bytes")
)

// EncodeLen writes length as 7-bit groups, low bits first, with the high bit
// of each byte marking a continuation.
func EncodeLen(w io.Writer, length int) (int, error) {
	if length < 0 || length > math.MaxUint16 {
		return 0, ErrLengthOverflow
	}

	var buf [maxEncodedLen]byte
	n := 0
	for {
		buf[n] = byte(length & 0x7f)
		length >>= 7
		if length == 0 {
			n++
			break
		}
		buf[n] |= 0x80
		n++
	}

	return w.Write(buf[:n])
}

// DecodeLen reads a length written by EncodeLen. Encodings with redundant
// trailing zero groups are rejected.
func DecodeLen(r io.Reader) (int, error) {
	var b [1]byte
	var length int

	for i := 0; i < maxEncodedLen; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if err == io.EOF && i > 0 {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}

		group := int(b[0] & 0x7f)
		if group == 0 && i > 0 {
			return 0, ErrNonCanonical
		}
		length |= group << (7 * i)

		if b[0]&0x80 == 0 {
			if length > math.MaxUint16 {
				return 0, ErrLengthOverflow
			}
			return length, nil
		}
	}

	return 0, ErrEncodingTooLong
}
