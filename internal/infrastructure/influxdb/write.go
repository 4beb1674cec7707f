package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/roomlink-core/internal/alert"
	"github.com/nerrad567/roomlink-core/internal/device"
	"github.com/nerrad567/roomlink-core/internal/history"
)

// RecordReading writes the sensor snapshot of one device.
//
// Field names match the ones Latest reads back, so recorded readings are
// served as history.
//
// Example:
//
//	client.RecordReading("living_room", d.Sensors, time.UnixMilli(d.LastUpdate))
func (c *Client) RecordReading(deviceID string, s device.Sensors, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementReadings,
		map[string]string{TagDeviceID: deviceID},
		map[string]any{
			history.FieldTemperature: s.Temperature,
			history.FieldHumidity:    s.Humidity,
			history.FieldIlluminance: int64(s.Illuminance),
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}

// Notify records alerts as points so they can be charted next to the
// readings. It satisfies alert.Notifier and never returns an error;
// write failures go to the SetOnError callback.
func (c *Client) Notify(_ context.Context, events []alert.Event) error {
	if !c.IsConnected() {
		return nil
	}

	for _, ev := range events {
		point := write.NewPoint(
			MeasurementAlerts,
			map[string]string{
				TagDeviceID: ev.DeviceID,
				TagMetric:   ev.Metric,
			},
			map[string]any{
				"value": ev.Value,
				"limit": ev.Limit,
			},
			ev.At,
		)
		c.writeAPI.WritePoint(point)
	}
	return nil
}
