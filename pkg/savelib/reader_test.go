package savelib

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestBoundedReaderCapsOutput(t *testing.T) {
	src := strings.NewReader("0123456789")
	r := NewBoundedReader(src, 4)

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "0123" {
		t.Errorf("read %q, want %q", got, "0123")
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", r.Remaining())
	}

	n, err := r.Read(make([]byte, 1))
	if n != 0 || err != io.EOF {
		t.Errorf("read past bound = (%d, %v), want (0, EOF)", n, err)
	}
}

func TestBoundedReaderShortSource(t *testing.T) {
	r := NewBoundedReader(strings.NewReader("ab"), 100)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ab" {
		t.Errorf("read %q, want %q", got, "ab")
	}
}

func TestCallbackReaderCountsBytes(t *testing.T) {
	var total int
	r := NewCallbackReader(bytes.NewReader(make([]byte, 1000)), func(n int) {
		total += n
	})
	if _, err := io.Copy(io.Discard, r); err != nil {
		t.Fatal(err)
	}
	if total != 1000 {
		t.Errorf("callback total = %d, want 1000", total)
	}
}
