package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSlotPose   = "slot_pose"
	MeasurementFrame      = "tracking_frame"
	MeasurementMovedEvent = "tracker_moved"
)

// SlotPose is one bound slot's pose at a point in time.
type SlotPose struct {
	Label    string
	Class    string
	Serial   string
	Position [3]float64
	Rotation [4]float64 // x, y, z, w
}

// FrameSample summarises one tracking update.
type FrameSample struct {
	Frame     uint64
	Connected bool
	Seen      int
	Bound     int
	Dropped   int
	Rejected  int
	Moved     int
	Duration  time.Duration
}

// WriteSlotPose records a pose point tagged by slot label, class and serial.
func (c *Client) WriteSlotPose(p SlotPose, at time.Time) {
	c.write(MeasurementSlotPose,
		map[string]string{
			"slot":   p.Label,
			"class":  p.Class,
			"serial": p.Serial,
		},
		map[string]any{
			"x":  p.Position[0],
			"y":  p.Position[1],
			"z":  p.Position[2],
			"qx": p.Rotation[0],
			"qy": p.Rotation[1],
			"qz": p.Rotation[2],
			"qw": p.Rotation[3],
		},
		at,
	)
}

// WriteFrame records per-frame counters.
func (c *Client) WriteFrame(s FrameSample, at time.Time) {
	c.write(MeasurementFrame,
		nil,
		map[string]any{
			"frame":       int64(s.Frame), // #nosec G115 -- frame counter never nears MaxInt64
			"connected":   s.Connected,
			"seen":        s.Seen,
			"bound":       s.Bound,
			"dropped":     s.Dropped,
			"rejected":    s.Rejected,
			"moved":       s.Moved,
			"duration_us": s.Duration.Microseconds(),
		},
		at,
	)
}

// WriteMoved records a moved notification for serial.
func (c *Client) WriteMoved(serial string, distance float64, at time.Time) {
	c.write(MeasurementMovedEvent,
		map[string]string{"serial": serial},
		map[string]any{"distance": distance},
		at,
	)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.write(measurement, tags, fields, time.Now())
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
