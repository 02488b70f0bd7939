package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementItemMetrics = "item_metrics"
	MeasurementItemEvents  = "item_events"
)

// WriteItemMetric records the current ganancia and peso of an item.
// The write is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteItemMetric(1, 10.0, 2.5)
func (c *Client) WriteItemMetric(itemID int64, ganancia, peso float64) {
	c.writePoint(
		MeasurementItemMetrics,
		map[string]string{"item_id": strconv.FormatInt(itemID, 10)},
		map[string]interface{}{
			"ganancia": ganancia,
			"peso":     peso,
		},
		time.Now(),
	)
}

// WriteItemEvent records one mutation of an item. The action tag has low
// cardinality (created, replaced, updated, deleted), so per-action rates can
// be queried with a count over the "count" field.
func (c *Client) WriteItemEvent(itemID int64, action string) {
	c.writePoint(
		MeasurementItemEvents,
		map[string]string{
			"action":  action,
			"item_id": strconv.FormatInt(itemID, 10),
		},
		map[string]interface{}{"count": 1},
		time.Now(),
	)
}

// writePoint is a no-op when the client is not connected.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if c == nil || !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
