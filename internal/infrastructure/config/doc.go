// Package config loads and validates the meshboard configuration.
//
// Configuration comes from a single YAML file, with selected values
// overridable through MESHBOARD_* environment variables so secrets stay
// out of the file (MESHBOARD_JWT_SECRET, MESHBOARD_MQTT_PASSWORD,
// MESHBOARD_INFLUXDB_TOKEN, and so on). Defaults are applied before
// validation; a config that passes Load is complete and usable.
//
// Everything is read once at startup. Nothing here is hot-reloaded: a
// config change means a restart, which the poller and hub are built to
// tolerate.
//
// Keep the file itself at 0600 when it carries broker credentials.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Host)
package config
