// Package influxdb records tracking telemetry in InfluxDB v2.
//
// Three measurements are written:
//   - slot_pose: bound slot poses, downsampled by pose_every_n_frames
//   - tracking_frame: per-frame seen/bound/dropped counters and timing
//   - tracker_moved: moved notifications with the distance travelled
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Connection and health check errors are returned; write errors arrive on
// the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package influxdb
