package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/roomlink-core/internal/history"
)

// Latest returns up to limit of the most recent readings for deviceID,
// newest first. Each entry is keyed by its RFC 3339 timestamp and carries
// the timestamp field in Unix milliseconds.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: device to read
//   - limit: maximum number of readings (values <= 0 request 1)
//
// Returns:
//   - []history.Entry: the readings, possibly empty
//   - error: ErrNotConnected, or ErrQueryFailed wrapping the cause
func (c *Client) Latest(ctx context.Context, deviceID string, limit int) ([]history.Entry, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	result, err := c.queryAPI.Query(ctx, latestQuery(c.bucket, deviceID, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	var entries []history.Entry
	for result.Next() {
		rec := result.Record()
		entries = append(entries, entryFromValues(rec.Time(), rec.Values()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return entries, nil
}

// latestQuery builds the Flux query for the newest readings of a device.
// Field columns are pivoted so each row is one reading.
func latestQuery(bucket, deviceID string, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", strconv.Quote(bucket))
	b.WriteString("  |> range(start: 0)\n")
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s and r.%s == %s)\n",
		strconv.Quote(MeasurementReadings), TagDeviceID, strconv.Quote(deviceID))
	b.WriteString("  |> pivot(rowKey: [\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")\n")
	b.WriteString("  |> group()\n")
	b.WriteString("  |> sort(columns: [\"_time\"], desc: true)\n")
	fmt.Fprintf(&b, "  |> limit(n: %d)", max(limit, 1))
	return b.String()
}

// entryFromValues maps one pivoted row to a history entry.
func entryFromValues(at time.Time, values map[string]any) history.Entry {
	fields := map[string]any{
		history.FieldTimestamp: at.UnixMilli(),
	}
	for _, name := range []string{history.FieldTemperature, history.FieldHumidity, history.FieldIlluminance} {
		if v, ok := values[name]; ok && v != nil {
			fields[name] = v
		}
	}
	return history.Entry{Key: at.UTC().Format(time.RFC3339Nano), Fields: fields}
}
