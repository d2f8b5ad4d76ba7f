// Package influxdb stores Printwatch Core's print telemetry.
//
// It wraps influxdb-client-go v2's non-blocking write API for two
// measurements:
//
//	print_progress  live samples per status update (progress fraction,
//	                print seconds, filament used), tagged by printer and job
//	print_jobs      one point per finished job, timestamped at the job's
//	                end time so late history reconciliation lands correctly
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteJobProgress("voron-350", "00004A", 0.42, 1530, 812.5)
//
// Writes are batched per the config's batch_size and flush_interval and
// never block the caller; batch failures surface through the SetOnError
// callback. All methods are safe for concurrent use.
package influxdb
