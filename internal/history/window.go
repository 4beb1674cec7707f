package history

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Window limits records to those newer than a cutoff before now.
// The zero value is AllTime.
type Window struct {
	span time.Duration
}

// AllTime applies no cutoff.
var AllTime = Window{}

// maxWindowHours is the longest window a time.Duration can express.
const maxWindowHours = math.MaxInt64 / int64(time.Hour)

// Hours returns a window covering the n hours before now. n <= 0 yields
// AllTime, and so does any n longer than maxWindowHours.
func Hours(n int) Window {
	if n <= 0 || int64(n) > maxWindowHours {
		return AllTime
	}
	return Window{span: time.Duration(n) * time.Hour}
}

// IsAllTime reports whether the window has no cutoff.
func (w Window) IsAllTime() bool {
	return w.span <= 0
}

// Span returns the window length, or 0 for AllTime.
func (w Window) Span() time.Duration {
	return w.span
}

// String renders the window as "24h" or "all".
func (w Window) String() string {
	if w.IsAllTime() {
		return "all"
	}
	return strconv.Itoa(int(w.span/time.Hour)) + "h"
}

// ParseWindow parses a whole number of hours. An empty string or "all"
// yields AllTime.
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllTime, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
	if err != nil || n <= 0 {
		return AllTime, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	return Hours(n), nil
}

// Filter returns the records with Timestamp >= now - window, sorted
// ascending by timestamp. AllTime keeps every record. The input slice is
// not modified.
func Filter(records []Record, w Window, now time.Time) []Record {
	out := make([]Record, 0, len(records))
	if w.IsAllTime() {
		out = append(out, records...)
	} else {
		cutoff := now.Add(-w.span).UnixMilli()
		for _, r := range records {
			if r.Timestamp >= cutoff {
				out = append(out, r)
			}
		}
	}

	slices.SortStableFunc(out, func(a, b Record) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out
}
