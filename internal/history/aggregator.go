package history

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default fetch bounds used when Options leaves them unset.
const (
	defaultLimit   = 100
	defaultMax     = 1000
	defaultTimeout = 15 * time.Second
)

// Logger defines the logging interface used by the Aggregator.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures an Aggregator.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	// Timeout bounds one store read, independent of any single caller.
	Timeout time.Duration
}

// Aggregator fetches and parses device history.
//
// Concurrent fetches for the same device and limit share one store read.
// The shared read is detached from the callers' contexts so one caller
// giving up does not fail the others; each caller still returns as soon
// as its own context is done.
//
// Thread Safety: All methods are safe for concurrent use.
type Aggregator struct {
	store  Store
	opts   Options
	group  singleflight.Group
	now    func() time.Time
	logger Logger
}

// NewAggregator creates an Aggregator reading from store.
func NewAggregator(store Store, opts Options) *Aggregator {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = defaultMax
	}
	opts.DefaultLimit = min(opts.DefaultLimit, opts.MaxLimit)
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Aggregator{
		store:  store,
		opts:   opts,
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the aggregator.
func (a *Aggregator) SetLogger(logger Logger) {
	a.logger = logger
}

// SetClock replaces the time source used by FetchWindow.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// Fetch reads up to limit of the most recent records for deviceID.
// limit <= 0 selects the default; larger values are capped at the
// configured maximum. Records are returned in store order.
//
// On failure the result is an empty, non-nil slice and the error wraps
// ErrUnavailable.
func (a *Aggregator) Fetch(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	if deviceID == "" {
		return []Record{}, ErrInvalidDeviceID
	}
	limit = a.limit(limit)

	key := deviceID + "\x00" + strconv.Itoa(limit)
	ch := a.group.DoChan(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.Timeout)
		defer cancel()

		entries, err := a.store.Latest(readCtx, deviceID, limit)
		if err != nil {
			return nil, err
		}
		records := Parse(entries)
		if dropped := len(entries) - len(records); dropped > 0 {
			a.logger.Debug("history entries without timestamp discarded",
				"device_id", deviceID, "dropped", dropped)
		}
		return records, nil
	})

	select {
	case <-ctx.Done():
		return []Record{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			a.logger.Warn("history fetch failed", "device_id", deviceID, "error", res.Err)
			return []Record{}, fmt.Errorf("%w: %w", ErrUnavailable, res.Err)
		}
		// Shared callers each get their own slice.
		return slices.Clone(res.Val.([]Record)), nil
	}
}

// FetchWindow fetches records and applies the window, returning them
// sorted ascending by timestamp.
func (a *Aggregator) FetchWindow(ctx context.Context, deviceID string, limit int, w Window) ([]Record, error) {
	records, err := a.Fetch(ctx, deviceID, limit)
	if err != nil {
		return records, err
	}
	return Filter(records, w, a.now()), nil
}

func (a *Aggregator) limit(n int) int {
	if n <= 0 {
		return a.opts.DefaultLimit
	}
	return min(n, a.opts.MaxLimit)
}
