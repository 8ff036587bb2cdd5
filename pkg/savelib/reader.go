package savelib

import "io"

// BoundedReader exposes at most n bytes of an underlying reader. It is
// forward-only: no seeking, no writing. The byte-range file server uses
// it to cap how much a response body can pull from an open file handle.
type BoundedReader struct {
	r         io.Reader
	remaining int64
}

// NewBoundedReader returns a reader that yields exactly n bytes of r
// (fewer if r ends early), then io.EOF.
func NewBoundedReader(r io.Reader, n int64) *BoundedReader {
	return &BoundedReader{r: r, remaining: n}
}

func (b *BoundedReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	return n, err
}

// Remaining returns how many bytes may still be read.
func (b *BoundedReader) Remaining() int64 {
	return b.remaining
}

// CallbackReader wraps an io.Reader and invokes a callback synchronously
// after each read with the number of bytes read. Used to feed byte
// counters without touching the copy loop.
type CallbackReader struct {
	r io.Reader
	c func(n int)
}

// NewCallbackReader returns a CallbackReader over r calling cb per read.
func NewCallbackReader(r io.Reader, cb func(n int)) *CallbackReader {
	return &CallbackReader{r: r, c: cb}
}

func (p *CallbackReader) Read(b []byte) (n int, err error) {
	n, err = p.r.Read(b)
	p.c(n)
	return
}
