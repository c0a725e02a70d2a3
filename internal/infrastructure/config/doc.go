// Package config loads the push server configuration from YAML.
//
// Values are layered: built-in defaults, then the YAML file, then HMDM_*
// environment variables. Load validates the result, including the push
// throttle thresholds (light <= medium <= heavy) and that a parked long-poll
// request always ends before the HTTP write timeout.
//
// Broker credentials, the keystore password and the InfluxDB token are
// best supplied through the environment:
//
//	HMDM_MQTT_PASSWORD, HMDM_MQTT_KEYSTORE_PASSWORD, HMDM_INFLUXDB_TOKEN
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	delay := cfg.GetMessageDelay()
package config
