package tracking

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DeviceClass is the kind of tracked device reported by the runtime.
type DeviceClass int

// Device classes. The declaration order is the scan order used for
// validation and camera-controller extraction.
const (
	ClassHMD DeviceClass = iota
	ClassController
	ClassGenericTracker
	ClassBaseStation
)

// AllClasses lists every device class in scan order.
var AllClasses = []DeviceClass{ClassHMD, ClassController, ClassGenericTracker, ClassBaseStation}

var classNames = map[DeviceClass]string{
	ClassHMD:            "hmd",
	ClassController:     "controller",
	ClassGenericTracker: "generic_tracker",
	ClassBaseStation:    "base_station",
}

// String returns the wire name of the class.
func (c DeviceClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Valid reports whether c is one of the four known classes.
func (c DeviceClass) Valid() bool {
	_, ok := classNames[c]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (c DeviceClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClass, int(c))
	}
	return []byte(classNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *DeviceClass) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDeviceClass converts a wire name ("hmd", "controller",
// "generic_tracker", "base_station") into a DeviceClass.
func ParseDeviceClass(s string) (DeviceClass, error) {
	for c, name := range classNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownClass, s)
}

// IdentityRotation is the quaternion for "no rotation".
var IdentityRotation = quat.Number{Real: 1}

// Pose is a position and orientation in the runtime's tracking space.
// Rotation is a unit quaternion with Real as the scalar part.
type Pose struct {
	Position r3.Vec
	Rotation quat.Number
}

type poseJSON struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"` // x, y, z, w
}

// MarshalJSON encodes the pose as {"position":[x,y,z],"rotation":[x,y,z,w]}.
func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(poseJSON{
		Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Rotation: [4]float64{p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag, p.Rotation.Real},
	})
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var raw poseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Position = r3.Vec{X: raw.Position[0], Y: raw.Position[1], Z: raw.Position[2]}
	p.Rotation = quat.Number{Imag: raw.Rotation[0], Jmag: raw.Rotation[1], Kmag: raw.Rotation[2], Real: raw.Rotation[3]}
	return nil
}

// DeviceInfo is one device as reported by the runtime for a single frame.
type DeviceInfo struct {
	Serial string
	Pose   Pose
}

// Snapshot is the per-frame device report keyed by class. Slice order is
// the runtime's enumeration order and is not stable across frames. A
// missing class is equivalent to an empty one.
type Snapshot map[DeviceClass][]DeviceInfo

// EmptySnapshot returns a snapshot with all four classes present and empty.
func EmptySnapshot() Snapshot {
	s := make(Snapshot, len(AllClasses))
	for _, c := range AllClasses {
		s[c] = []DeviceInfo{}
	}
	return s
}

// Devices returns the devices of class c, or nil when the class is absent.
func (s Snapshot) Devices(c DeviceClass) []DeviceInfo {
	return s[c]
}

// Count returns the number of devices across all classes.
func (s Snapshot) Count() int {
	n := 0
	for _, devs := range s {
		n += len(devs)
	}
	return n
}

// Clone returns a deep copy that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for c, devs := range s {
		cp := make([]DeviceInfo, len(devs))
		copy(cp, devs)
		out[c] = cp
	}
	return out
}
