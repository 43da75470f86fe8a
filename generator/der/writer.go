// Package der implements a streaming writer for the Distinguished Encoding
// Rules subset of ASN.1.
//
// Primitive values are appended to the active buffer as they are written.
// Constructed values (SEQUENCE, SET, BIT STRING and OCTET STRING wrappers,
// context-specific tags) are opened with a [Continuation]: the writer pushes
// the active buffer, lets the continuation fill a fresh one and, once the
// continuation returns, pops the parent and appends the finished child with
// its tag and length. A section can therefore never be left open.
//
// Encoding problems that depend on input values (negative integers,
// malformed object identifiers) are latched with [Writer.SetError] and
// reported by [Writer.Bytes]. Everything written after the first error is
// discarded.
package der

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"
	"unicode/utf8"
)

// Universal tags used by this package.
const (
	TagInteger         byte = 0x02
	TagBitString       byte = 0x03
	TagOctetString     byte = 0x04
	TagNull            byte = 0x05
	TagOID             byte = 0x06
	TagUTF8String      byte = 0x0c
	TagGeneralizedTime byte = 0x18
	TagSequence        byte = 0x30
	TagSet             byte = 0x31
	tagContextSpecific byte = 0xa0
)

const (
	maxLowTagNumber     = 30
	generalizedTimeForm = "20060102150405Z"
)

// Continuation fills the content of a constructed value.
type Continuation func(w *Writer)

// Writer accumulates DER output. The zero value is not usable; use
// [NewWriter]. A Writer must not be shared between goroutines.
type Writer struct {
	active *bytes.Buffer
	stack  []*bytes.Buffer
	err    error
}

func NewWriter() *Writer {
	return &Writer{active: new(bytes.Buffer)}
}

// SetError records err as the writer's error, unless an earlier error is
// already recorded.
func (w *Writer) SetError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Err returns the first error recorded on w.
func (w *Writer) Err() error {
	return w.err
}

// Bytes returns the finished document. It panics when called from inside a
// continuation, since the enclosing sections are still open at that point.
func (w *Writer) Bytes() ([]byte, error) {
	if len(w.stack) != 0 {
		panic(fmt.Sprintf("der: Bytes called with %d unclosed section(s)", len(w.stack)))
	}

	if w.err != nil {
		return nil, w.err
	}

	out := make([]byte, w.active.Len())
	copy(out, w.active.Bytes())
	return out, nil
}

func (w *Writer) push() {
	w.stack = append(w.stack, w.active)
	w.active = new(bytes.Buffer)
}

func (w *Writer) pop() []byte {
	if len(w.stack) == 0 {
		panic("der: section closed without a matching open")
	}

	child := w.active
	w.active = w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	return child.Bytes()
}

// nest runs fn against a fresh buffer and returns what it wrote. The parent
// buffer is restored even if fn panics.
func (w *Writer) nest(fn Continuation) (content []byte) {
	w.push()
	defer func() {
		content = w.pop()
	}()

	fn(w)
	return
}

// EncodeLength returns the DER length octets for n.
func EncodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}

	var b []byte
	for v := n; v > 0; v >>= 8 {
		b = append([]byte{byte(v)}, b...)
	}

	return append([]byte{0x80 | byte(len(b))}, b...)
}

func (w *Writer) writeTLV(tag byte, content []byte) {
	if w.err != nil {
		return
	}

	w.active.WriteByte(tag)
	w.active.Write(EncodeLength(len(content)))
	w.active.Write(content)
}

// WriteRaw appends already encoded DER bytes.
func (w *Writer) WriteRaw(b []byte) {
	if w.err != nil {
		return
	}

	w.active.Write(b)
}

// WriteIntegerBytes writes an INTEGER from an unsigned big-endian magnitude.
// Redundant leading zero bytes are removed and a zero byte is prepended when
// the most significant remaining bit is set. An empty or all-zero input
// encodes as a single zero byte.
func (w *Writer) WriteIntegerBytes(b []byte) {
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}

	if len(b) == 0 {
		b = []byte{0}
	}

	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}

	w.writeTLV(TagInteger, b)
}

// WriteInteger writes a non-negative INTEGER.
func (w *Writer) WriteInteger(v int64) {
	if v < 0 {
		w.SetError(fmt.Errorf("der: negative integer %d", v))
		return
	}

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.WriteIntegerBytes(b[:])
}

// WriteBigInt writes a non-negative INTEGER.
func (w *Writer) WriteBigInt(n *big.Int) {
	if n == nil {
		w.SetError(errors.New("der: nil integer"))
		return
	}

	if n.Sign() < 0 {
		w.SetError(fmt.Errorf("der: negative integer %v", n))
		return
	}

	w.WriteIntegerBytes(n.Bytes())
}

// WriteOID writes an OBJECT IDENTIFIER given in dotted decimal form.
func (w *Writer) WriteOID(oid string) {
	arcs, err := ParseOID(oid)
	if err != nil {
		w.SetError(err)
		return
	}

	w.writeTLV(TagOID, encodeOID(arcs))
}

func (w *Writer) WriteNull() {
	w.writeTLV(TagNull, nil)
}

// WriteGeneralizedTime writes t in UTC with second precision.
func (w *Writer) WriteGeneralizedTime(t time.Time) {
	w.writeTLV(TagGeneralizedTime, []byte(t.UTC().Format(generalizedTimeForm)))
}

func (w *Writer) WriteUTF8String(s string) {
	if !utf8.ValidString(s) {
		w.SetError(fmt.Errorf("der: %q is not valid UTF-8", s))
		return
	}

	w.writeTLV(TagUTF8String, []byte(s))
}

// WriteBitString writes a BIT STRING whose content is a whole number of
// octets, so the unused-bits prefix is always zero.
func (w *Writer) WriteBitString(b []byte) {
	content := make([]byte, 0, len(b)+1)
	content = append(content, 0)
	content = append(content, b...)
	w.writeTLV(TagBitString, content)
}

func (w *Writer) WriteOctetString(b []byte) {
	w.writeTLV(TagOctetString, b)
}

// Sequence writes a SEQUENCE containing whatever fn writes.
func (w *Writer) Sequence(fn Continuation) {
	w.writeTLV(TagSequence, w.nest(fn))
}

// Set writes a SET containing whatever fn writes. Elements are kept in the
// order they were written.
func (w *Writer) Set(fn Continuation) {
	w.writeTLV(TagSet, w.nest(fn))
}

// BitString writes a BIT STRING whose content is the encoding produced by fn.
func (w *Writer) BitString(fn Continuation) {
	w.WriteBitString(w.nest(fn))
}

// OctetString writes an OCTET STRING whose content is the encoding produced
// by fn.
func (w *Writer) OctetString(fn Continuation) {
	w.WriteOctetString(w.nest(fn))
}

// Tagged writes a constructed context-specific value [tag] around whatever fn
// writes.
func (w *Writer) Tagged(tag int, fn Continuation) {
	content := w.nest(fn)
	if tag < 0 || tag > maxLowTagNumber {
		w.SetError(fmt.Errorf("der: context tag %d out of range", tag))
		return
	}

	w.writeTLV(tagContextSpecific|byte(tag), content)
}
