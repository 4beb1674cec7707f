// Package history reads past sensor readings for one device from a
// time-ordered store.
//
// The package is independent of the live device registry. A Store returns
// raw entries (a record key plus a field map); the Aggregator parses them
// into Records, discarding entries without a usable timestamp, and
// applies an optional time window.
//
// A failed read never yields partial data: callers receive an empty slice
// together with an error wrapping ErrUnavailable, and must treat that as
// "unknown" rather than "no history".
//
// Usage:
//
//	agg := history.NewAggregator(store, history.Options{DefaultLimit: 100, MaxLimit: 1000})
//	records, err := agg.FetchWindow(ctx, "living_room", 0, history.Hours(24))
package history
