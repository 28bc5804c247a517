// Package influxdb records login attempts and guard rejections as time series.
//
// It wraps influxdb-client-go v2 with a batched, non-blocking write API.
// InfluxDB is optional; with influxdb.enabled false Connect returns
// ErrDisabled and Core runs without it.
//
// Measurements:
//
//	login_attempts     tags: outcome, role    fields: count, username
//	guard_rejections   tags: reason, route    fields: count
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteLoginAttempt("admin1", influxdb.OutcomeSuccess, "admin")
package influxdb
