// Package sdnv implements the Self-Delimiting Numeric Value encoding used by
// RFC 5050 bundles: a big-endian base-128 variable-length integer where the
// MSB of each octet marks a continuation byte.
//
// The function shapes mirror github.com/dtn7/cboring's Read*/Write* calls
// operating directly on an io.Reader/io.Writer, just for SDNV instead of CBOR.
package sdnv

import (
	"errors"
	"io"
)

// ErrOverflow is returned by ReadUint32 if the decoded value does not fit
// into 32 bits.
var ErrOverflow = errors.New("sdnv: value overflows target width")

// ErrTruncated is returned when the input ends before a final (non-continuation) octet is read.
var ErrTruncated = errors.New("sdnv: truncated before terminating octet")

// maxSdnvOctets bounds a single SDNV to 10 octets, enough for any uint64 plus
// some margin, preventing a hostile peer from forcing an unbounded read.
const maxSdnvOctets = 10

// EncodedLen returns the number of octets WriteUint64 would emit for v.
func EncodedLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// WriteUint64 writes v to w as an SDNV, using the minimum number of octets.
func WriteUint64(v uint64, w io.Writer) error {
	var buf [maxSdnvOctets]byte
	n := EncodedLen(v)

	// Fill from the last octet backwards; only the final (least-significant)
	// octet has its continuation bit clear.
	rem := v
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(rem & 0x7f)
		if i != n-1 {
			buf[i] |= 0x80
		}
		rem >>= 7
	}

	_, err := w.Write(buf[:n])
	return err
}

// WriteUint32 writes v as an SDNV.
func WriteUint32(v uint32, w io.Writer) error {
	return WriteUint64(uint64(v), w)
}

// ReadUint64 reads an SDNV from r.
func ReadUint64(r io.Reader) (uint64, error) {
	var one [1]byte
	var v uint64

	for i := 0; i < maxSdnvOctets; i++ {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return 0, ErrTruncated
			}
			return 0, err
		}

		b := one[0]
		v = (v << 7) | uint64(b&0x7f)

		if b&0x80 == 0 {
			return v, nil
		}
	}

	return 0, ErrOverflow
}

// ReadUint32 reads an SDNV from r, failing with ErrOverflow if it does not
// fit into 32 bits.
func ReadUint32(r io.Reader) (uint32, error) {
	v, err := ReadUint64(r)
	if err != nil {
		return 0, err
	}
	if v > 0xffffffff {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}
