// Package influxdb provides InfluxDB connectivity for ddcwatch.
//
// It wraps the official influxdb-client-go v2 library with ddcwatch-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Display hotplug event rates per connector
//   - Connected and DDC-capable display counts over time
//   - Watch loop health (iteration duration, stabilization samples)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "ddcwatch",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a hotplug event
//	client.WriteHotplugEvent("connected", "card0-DP-1", 3, 1)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// Hotplug events are rare, so batches mostly flush on the interval timer.
package influxdb
