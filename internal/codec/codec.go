// Package codec implements the deterministic binary encoding shared by
// every on-chain entity: fixed-width numerics in big-endian, bytes fields
// copied verbatim, and variable-length sequences prefixed by a
// little-endian 64-bit element count. The hash of an entity is always
// SHA-256 of the canonical serialization of its header (every field except
// its signature, in declared order).
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/pea-chain/peacashd/internal/errs"
)

// Writer accumulates a canonical serialization.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated serialization.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Fixed appends a fixed-width byte field verbatim.
func (w *Writer) Fixed(b []byte) *Writer {
	w.buf.Write(b)
	return w
}

// Uint32 appends a 32-bit big-endian integer (used for Timestamp).
func (w *Writer) Uint32(v uint32) *Writer {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf.Write(tmp[:])
	return w
}

// Byte appends a single byte (used for booleans such as Stake.Deposit).
func (w *Writer) Byte(v byte) *Writer {
	w.buf.WriteByte(v)
	return w
}

// Count appends a little-endian 64-bit element count, the prefix every
// variable-length sequence carries.
func (w *Writer) Count(n int) *Writer {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(n))
	w.buf.Write(tmp[:])
	return w
}

// Reader consumes a canonical serialization produced by Writer, failing
// with errs.MalformedBytes on length underrun.
type Reader struct {
	b   []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Fixed reads n bytes verbatim.
func (r *Reader) Fixed(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, errs.Wrap(errs.MalformedBytes, fmt.Errorf("need %d bytes, have %d", n, len(r.b)-r.pos))
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// Uint32 reads a 32-bit big-endian integer.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	b, err := r.Fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Count reads a little-endian 64-bit element count.
func (r *Reader) Count() (int, error) {
	b, err := r.Fixed(8)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint64(b)), nil
}

// Remaining reports how many bytes are left unread; decode paths that must
// consume the entire buffer check this is zero at the end.
func (r *Reader) Remaining() int { return len(r.b) - r.pos }

// Hash returns SHA-256 of header, the canonical hash of any entity.
func Hash(header []byte) [32]byte {
	return sha256.Sum256(header)
}
