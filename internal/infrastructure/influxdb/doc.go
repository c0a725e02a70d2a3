// Package influxdb exports push delivery health snapshots to InfluxDB.
//
// It wraps influxdb-client-go v2 with a non-blocking batched write API.
// The Exporter samples the push monitor on a fixed interval and writes one
// "push_health" point per sample, tagged with the server ID.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // export switched off
//	}
//	defer client.Close()
//
//	exp := influxdb.NewExporter(client, snapshot, time.Minute)
//	go exp.Run(ctx)
//
// Write failures are delivered asynchronously through SetOnError.
package influxdb
