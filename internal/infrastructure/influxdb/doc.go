// Package influxdb records mesh telemetry in InfluxDB.
//
// Two measurements are written on top of influxdb-client-go v2: one
// point per stored message for signal quality (SNR, mesh path length),
// and a poller health gauge on every connection state change. Both are
// optional; the pipeline runs identically with the client disabled.
//
// Writes go through the non-blocking batched write API, so recording a
// point never stalls the radio drain loop, and a burst of messages
// costs one HTTP request rather than one per message. Batch size and
// flush interval come from config.yaml. Write errors surface
// asynchronously through SetOnError; Connect and HealthCheck report
// their errors directly.
//
// All methods are safe for concurrent use.
//
// Usage:
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "meshboard",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteMessageSignal("CHANNEL", "Public", 5.25, 2, time.Now())
package influxdb
