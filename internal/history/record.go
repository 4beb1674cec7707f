package history

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// Field names read from stored entries.
const (
	FieldTimestamp   = "timestamp"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldIlluminance = "light"
)

// Entry is one raw record as returned by a Store.
type Entry struct {
	// Key identifies the record within the device scope.
	Key    string
	Fields map[string]any
}

// Store reads the most recent entries for a device.
//
// Implementations return at most limit entries in any order. Both the
// REST document store and InfluxDB clients satisfy it.
type Store interface {
	Latest(ctx context.Context, deviceID string, limit int) ([]Entry, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, deviceID string, limit int) ([]Entry, error)

// Latest calls f.
func (f StoreFunc) Latest(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	return f(ctx, deviceID, limit)
}

// Record is one parsed historical reading.
type Record struct {
	Timestamp   int64   `json:"timestamp"` // Unix ms
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Illuminance int     `json:"illuminance"`
	ID          string  `json:"id"`
}

// Parse converts raw entries into records.
//
// Entries whose timestamp is missing, unparseable or not positive are
// discarded. Other absent or unparseable fields read as zero.
func Parse(entries []Entry) []Record {
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		if r, ok := parseEntry(e); ok {
			records = append(records, r)
		}
	}
	return records
}

func parseEntry(e Entry) (Record, bool) {
	ts, ok := number(e.Fields[FieldTimestamp])
	if !ok || ts <= 0 || ts >= math.MaxInt64 {
		return Record{}, false
	}

	temperature, _ := number(e.Fields[FieldTemperature])
	humidity, _ := number(e.Fields[FieldHumidity])
	light, _ := number(e.Fields[FieldIlluminance])
	if light > math.MaxInt32 || light < math.MinInt32 {
		light = 0
	}

	return Record{
		Timestamp:   int64(ts),
		Temperature: temperature,
		Humidity:    humidity,
		Illuminance: int(math.Round(light)),
		ID:          e.Key,
	}, true
}

// number reads a numeric field. Stores may hand back JSON numbers,
// integers from typed drivers, or numeric strings.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
