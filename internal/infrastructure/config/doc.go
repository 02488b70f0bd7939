// Package config loads config.yaml for the Envío service.
//
// Values are resolved in three layers: built-in defaults, then the YAML
// file, then ENVIO_* environment variables. Validate reports every problem
// it finds in one error.
//
// The audit database, MQTT and InfluxDB sections are all disabled by
// default, so a service started with no file serves the in-memory item API
// and nothing else. Keep broker passwords and InfluxDB tokens in the
// environment (ENVIO_MQTT_PASSWORD, ENVIO_INFLUXDB_TOKEN) rather than in
// the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
package config
