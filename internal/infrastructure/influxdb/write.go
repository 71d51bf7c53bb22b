package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHotplugEvent records a single display hotplug event.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - eventType: The event name (e.g., "connected", "disconnected")
//   - connector: The DRM connector (e.g., "card0-DP-1")
//   - busNumber: The /dev/i2c-N bus number
//   - displayNumber: The assigned display number, or a negative sentinel
//
// Example:
//
//	client.WriteHotplugEvent("connected", "card0-DP-1", 3, 1)
func (c *Client) WriteHotplugEvent(eventType, connector string, busNumber, displayNumber int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"display_events",
		map[string]string{
			"event_type": eventType,
			"connector":  connector,
		},
		map[string]interface{}{
			"bus_number":     busNumber,
			"display_number": displayNumber,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDisplayCount records the current display population.
//
// Written after each hotplug iteration that changed the set of
// displays, so the bucket holds a step function of the counts.
//
// Parameters:
//   - connected: Number of displays with a parsed EDID
//   - ddcWorking: Subset that responded to a DDC probe
func (c *Client) WriteDisplayCount(connected, ddcWorking int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"display_count",
		nil,
		map[string]interface{}{
			"connected":   connected,
			"ddc_working": ddcWorking,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWatchStats records watch loop health indicators.
//
// Parameters:
//   - iterationMillis: Wall time of the last hotplug iteration
//   - stabilizationSamples: EDID samples taken before the bus set settled
func (c *Client) WriteWatchStats(iterationMillis float64, stabilizationSamples int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"watch_stats",
		nil,
		map[string]interface{}{
			"iteration_ms":          iterationMillis,
			"stabilization_samples": stabilizationSamples,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "htpc-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed events).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
