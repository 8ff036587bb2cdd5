package savelib

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitedReader wraps an io.Reader and throttles it to a byte-per-
// second ceiling with a token bucket. A limit of 0 or below means
// unlimited. The bucket starts empty so a resumed transfer gets no
// initial burst.
type RateLimitedReader struct {
	r        io.Reader
	limit    int64
	mu       sync.Mutex
	lastRead time.Time
	tokens   int64
}

// NewRateLimitedReader returns a reader throttled to limit bytes per
// second. 0 or negative means unlimited.
func NewRateLimitedReader(r io.Reader, limit int64) *RateLimitedReader {
	return &RateLimitedReader{
		r:        r,
		limit:    limit,
		lastRead: time.Now(),
	}
}

func (r *RateLimitedReader) Read(b []byte) (n int, err error) {
	if r.limit <= 0 {
		return r.r.Read(b)
	}

	r.mu.Lock()
	r.refill()

	want := int64(len(b))
	if want > r.limit {
		// never hand out more than one second's worth at once
		want = r.limit
	}

	if r.tokens < want {
		needed := want - r.tokens
		wait := time.Duration(float64(time.Second) * float64(needed) / float64(r.limit))
		if wait > 0 {
			r.mu.Unlock()
			time.Sleep(wait)
			r.mu.Lock()
			r.refill()
		}
	}

	size := int(want)
	if r.tokens > 0 && int64(size) > r.tokens {
		size = int(r.tokens)
	}
	if size <= 0 {
		size = 1
	}
	r.mu.Unlock()

	n, err = r.r.Read(b[:size])

	r.mu.Lock()
	r.tokens -= int64(n)
	r.mu.Unlock()
	return n, err
}

// refill accrues tokens for the wall-clock time elapsed since the last
// read, capped at one second's worth. Caller holds r.mu.
func (r *RateLimitedReader) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRead)
	r.lastRead = now
	r.tokens += int64(float64(r.limit) * elapsed.Seconds())
	if r.tokens > r.limit {
		r.tokens = r.limit
	}
}

// SetLimit updates the ceiling mid-transfer. 0 or negative lifts it.
func (r *RateLimitedReader) SetLimit(limit int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limit = limit
	if limit > 0 && r.tokens > limit {
		r.tokens = limit
	}
}

// Limit returns the current ceiling in bytes per second.
func (r *RateLimitedReader) Limit() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit
}

// ParseSpeedLimit parses a human-readable speed limit such as "512KB",
// "1.5MB" or "100" (plain bytes) into bytes per second. "0" means
// unlimited.
func ParseSpeedLimit(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty speed limit")
	}
	if s == "0" {
		return 0, nil
	}

	numStr, unit := s, ""
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' {
			numStr, unit = s[:i], s[i:]
			break
		}
	}
	if numStr == "" {
		return 0, fmt.Errorf("speed limit %q has no numeric value", s)
	}
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("speed limit %q is not a valid non-negative number", s)
	}

	var multiplier int64
	switch unit {
	case "", "B":
		multiplier = B
	case "KB", "K":
		multiplier = KB
	case "MB", "M":
		multiplier = MB
	case "GB", "G":
		multiplier = GB
	default:
		return 0, fmt.Errorf("unknown speed limit unit %q (use B, KB, MB, or GB)", unit)
	}
	return int64(num * float64(multiplier)), nil
}
