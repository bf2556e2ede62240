package main

import (
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tracker-core/internal/tracking"
)

type telemetryWriter interface {
	WriteFrame(s influxdb.FrameSample, at time.Time)
	WriteSlotPose(p influxdb.SlotPose, at time.Time)
}

// poseTelemetry writes a frame sample every frame and the bound slot poses
// every n-th frame.
type poseTelemetry struct {
	w     telemetryWriter
	every uint64
}

func newPoseTelemetry(w telemetryWriter, everyN int) *poseTelemetry {
	if everyN < 1 {
		everyN = 1
	}
	return &poseTelemetry{w: w, every: uint64(everyN)} // #nosec G115 -- checked positive above
}

func (t *poseTelemetry) ObserveFrame(stats tracking.FrameStats, bound []tracking.SlotHandle) {
	seen := 0
	for _, n := range stats.Seen {
		seen += n
	}

	t.w.WriteFrame(influxdb.FrameSample{
		Frame:     stats.Frame,
		Connected: stats.Connected,
		Seen:      seen,
		Bound:     stats.TotalBound(),
		Dropped:   stats.TotalDropped(),
		Rejected:  stats.Rejected,
		Moved:     len(stats.Moved),
		Duration:  stats.Duration,
	}, stats.At)

	if stats.Frame%t.every != 0 {
		return
	}
	for _, h := range bound {
		t.w.WriteSlotPose(slotPose(h), stats.At)
	}
}

func slotPose(h tracking.SlotHandle) influxdb.SlotPose {
	p, q := h.Pose.Position, h.Pose.Rotation
	return influxdb.SlotPose{
		Label:    h.Label,
		Class:    h.Class.String(),
		Serial:   h.Serial,
		Position: [3]float64{p.X, p.Y, p.Z},
		Rotation: [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real},
	}
}
