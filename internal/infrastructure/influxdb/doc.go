// Package influxdb writes item telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//	item_metrics  fields ganancia, peso; tag item_id
//	item_events   field count; tags action, item_id
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteItemMetric(1, 10.0, 2.5)
//	client.WriteItemEvent(1, "created")
//
// Writes are batched according to config.yaml (batch_size, flush_interval).
// Write errors arrive asynchronously through SetOnError.
package influxdb
