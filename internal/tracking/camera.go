package tracking

// CameraControllerBinding is the configured camera-controller serial and the
// class the device was found under in the current frame. BoundClass is nil
// when the serial is unset or absent.
type CameraControllerBinding struct {
	ConfiguredSerial string       `json:"configured_serial"`
	BoundClass       *DeviceClass `json:"bound_class,omitempty"`
}

// ExtractCameraController removes the device with the given serial from the
// snapshot and returns it with its class. Classes are searched in
// AllClasses order and the first match wins. With an empty serial, or when
// nothing matches, the snapshot is left untouched.
//
// The bucket that held the device is replaced with a new slice, so other
// references to the old bucket are not affected.
func ExtractCameraController(s Snapshot, serial string) (DeviceInfo, DeviceClass, bool) {
	if serial == "" {
		return DeviceInfo{}, 0, false
	}

	for _, c := range AllClasses {
		devs := s[c]
		for i, dev := range devs {
			if dev.Serial != serial {
				continue
			}
			rest := make([]DeviceInfo, 0, len(devs)-1)
			rest = append(rest, devs[:i]...)
			rest = append(rest, devs[i+1:]...)
			s[c] = rest
			return dev, c, true
		}
	}

	return DeviceInfo{}, 0, false
}
