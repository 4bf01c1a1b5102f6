package transcript

import (
	"time"
	"unicode/utf8"
)

// DefaultCharDelay ms per typed character
const DefaultCharDelay int64 = 5

// Clock hands out reveal times. Now is in unix milliseconds.
type Clock struct {
	Now       int64
	CharDelay int64
}

// NewClock starts at the timestamp of the first event, or 0 without events
// or when that timestamp is unset.
func NewClock(first *time.Time, charDelay int64) *Clock {
	c := &Clock{CharDelay: charDelay}
	if first != nil && !first.IsZero() {
		c.Now = first.UnixMilli()
	}
	return c
}

// Observe moves the clock forward to ts if it is later
func (c *Clock) Observe(ts time.Time) {
	if ms := ts.UnixMilli(); ms > c.Now {
		c.Now = ms
	}
}

// Advance by n typed characters
func (c *Clock) Advance(n int) {
	c.Now += c.Span(n)
}

// Span the duration of typing n characters
func (c *Clock) Span(n int) int64 {
	return int64(n) * c.CharDelay
}

// Len counts characters the way the typing effect does, by code point.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}
