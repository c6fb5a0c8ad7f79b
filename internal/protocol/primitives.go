package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned by the binary decoders when a buffer ends
// before a length-prefixed field can be fully read.
var ErrTruncated = errors.New("protocol: truncated message")

// writer is a small append-only cursor shared by both hand-rolled binary
// encodings. Neither format pulls in a third-party varint/msgpack
// library -- the wire shapes here are simple enough that stdlib
// encoding/binary plus manual length-prefixing stays clearer than
// wiring one in for two call sites (see DESIGN.md).
type writer struct {
	buf bytes.Buffer
}

func (w *writer) byte(b byte) { w.buf.WriteByte(b) }

func (w *writer) uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

func (w *writer) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf.Write(b)
}

func (w *writer) str(s string) { w.bytes([]byte(s)) }

func (w *writer) strs(ss []string) {
	w.uvarint(uint64(len(ss)))
	for _, s := range ss {
		w.str(s)
	}
}

func (w *writer) bool(b bool) {
	if b {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func (w *writer) ints(xs []int) {
	w.uvarint(uint64(len(xs)))
	for _, x := range xs {
		w.uvarint(uint64(int64(x)))
	}
}

type reader struct {
	buf *bytes.Reader
}

func newReader(b []byte) *reader { return &reader{buf: bytes.NewReader(b)} }

func (r *reader) byte() (byte, error) { return r.buf.ReadByte() }

func (r *reader) uvarint() (uint64, error) {
	v, err := binary.ReadUvarint(r.buf)
	if err != nil {
		return 0, ErrTruncated
	}
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := readFull(r.buf, out); err != nil {
		return nil, ErrTruncated
	}
	return out, nil
}

func (r *reader) str() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) strs() ([]string, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r *reader) boolean() (bool, error) {
	b, err := r.byte()
	if err != nil {
		return false, ErrTruncated
	}
	return b != 0, nil
}

func (r *reader) ints() ([]int, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		v, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		out[i] = int(int64(v))
	}
	return out, nil
}

func readFull(r *bytes.Reader, out []byte) (int, error) {
	total := 0
	for total < len(out) {
		n, err := r.Read(out[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
