// Package influxdb records sensor readings and alerts in InfluxDB and
// serves them back as device history.
//
// It wraps the official influxdb-client-go v2 library. Readings are
// written to the "sensor_readings" measurement tagged by device_id with
// fields temperature, humidity and light; alerts go to "alerts" tagged by
// device_id and metric.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RecordReading("living_room", d.Sensors, time.Now())
//	entries, err := client.Latest(ctx, "living_room", 100)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write errors are delivered via the SetOnError callback. Connection,
// health check and query errors are returned directly.
package influxdb
