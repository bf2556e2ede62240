package openvr

import (
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nerrad567/tracker-core/internal/tracking"
)

// Bridge status values carried by StatusMessage.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// SnapshotMessage is published by the headset-side bridge once per runtime
// frame on tracker/runtime/snapshot.
//
//	{
//	  "frame": 1042,
//	  "timestamp": "2026-10-17T12:00:00.011Z",
//	  "devices": {
//	    "hmd": [{"serial": "LHR-HMD", "position": [0, 1.7, 0], "rotation": [0, 0, 0, 1]}],
//	    "generic_tracker": [...]
//	  }
//	}
type SnapshotMessage struct {
	Frame     uint64                     `json:"frame"`
	Timestamp time.Time                  `json:"timestamp"`
	Devices   map[string][]DeviceMessage `json:"devices"`
}

// DeviceMessage is one device entry. Rotation is x, y, z, w.
type DeviceMessage struct {
	Serial   string     `json:"serial"`
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
}

// StatusMessage is the bridge's retained status on tracker/runtime/status.
// The bridge republishes it periodically as a heartbeat.
type StatusMessage struct {
	Status    string    `json:"status"`
	Runtime   string    `json:"runtime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigMessage is the retained settings message Tracker Core publishes on
// tracker/runtime/config.
type ConfigMessage struct {
	ControllerAsTracker bool      `json:"controller_as_tracker"`
	Timestamp           time.Time `json:"timestamp"`
}

// Info converts the wire entry into a tracking.DeviceInfo.
func (d DeviceMessage) Info() tracking.DeviceInfo {
	return tracking.DeviceInfo{
		Serial: d.Serial,
		Pose: tracking.Pose{
			Position: r3.Vec{X: d.Position[0], Y: d.Position[1], Z: d.Position[2]},
			Rotation: quat.Number{Imag: d.Rotation[0], Jmag: d.Rotation[1], Kmag: d.Rotation[2], Real: d.Rotation[3]},
		},
	}
}

// toSnapshot converts the message to a tracking.Snapshot. Class names that
// do not parse are returned separately and left out of the snapshot.
func (m SnapshotMessage) toSnapshot() (tracking.Snapshot, []string) {
	snap := tracking.EmptySnapshot()
	var unknown []string

	for name, devices := range m.Devices {
		class, err := tracking.ParseDeviceClass(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		infos := make([]tracking.DeviceInfo, 0, len(devices))
		for _, d := range devices {
			infos = append(infos, d.Info())
		}
		snap[class] = infos
	}

	return snap, unknown
}
