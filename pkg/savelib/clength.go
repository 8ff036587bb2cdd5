package savelib

import "github.com/dustin/go-humanize"

// Size unit constants for byte conversions.
const (
	B  int64 = 1
	KB       = 1024 * B
	MB       = 1024 * KB
	GB       = 1024 * MB
)

// ContentLength is a byte count that may be unknown (-1).
type ContentLength int64

// V returns the raw byte count.
func (c ContentLength) V() int64 {
	return int64(c)
}

// IsUnknown reports whether the length was not advertised by the server.
func (c ContentLength) IsUnknown() bool {
	return c == -1
}

func (c ContentLength) String() string {
	if c < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(c))
}
