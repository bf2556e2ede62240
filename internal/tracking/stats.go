package tracking

import "time"

// FrameStats describes one completed frame.
type FrameStats struct {
	Frame     uint64    `json:"frame"`
	At        time.Time `json:"at"`
	Connected bool      `json:"connected"`

	// SnapshotError is set when the runtime was connected but the snapshot
	// could not be acquired in time.
	SnapshotError string `json:"snapshot_error,omitempty"`

	Seen    map[DeviceClass]int `json:"seen"`
	Bound   map[DeviceClass]int `json:"bound"`
	Dropped map[DeviceClass]int `json:"dropped"`

	Rejected int      `json:"rejected"`
	Moved    []string `json:"moved,omitempty"`

	// CameraControllerClass is the class the camera controller was found
	// under, or nil.
	CameraControllerClass *DeviceClass `json:"camera_controller_class,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

func newFrameStats(frame uint64, at time.Time) FrameStats {
	return FrameStats{
		Frame:   frame,
		At:      at,
		Seen:    make(map[DeviceClass]int, len(AllClasses)),
		Bound:   make(map[DeviceClass]int, len(AllClasses)),
		Dropped: make(map[DeviceClass]int, len(AllClasses)),
	}
}

// TotalDropped returns the dropped device count across all classes.
func (s FrameStats) TotalDropped() int {
	n := 0
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// TotalBound returns the number of bound class slots, excluding the
// camera-controller slot.
func (s FrameStats) TotalBound() int {
	n := 0
	for _, v := range s.Bound {
		n += v
	}
	return n
}

// FrameObserver receives the result of every frame. Observers run on the
// frame goroutine after the frame lock is released and must not block.
type FrameObserver interface {
	ObserveFrame(stats FrameStats, bound []SlotHandle)
}

// FrameObserverFunc adapts a function to FrameObserver.
type FrameObserverFunc func(stats FrameStats, bound []SlotHandle)

// ObserveFrame calls f.
func (f FrameObserverFunc) ObserveFrame(stats FrameStats, bound []SlotHandle) {
	f(stats, bound)
}
