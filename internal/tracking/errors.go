package tracking

import "errors"

// Domain errors for the tracking package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(rej.Reason, tracking.ErrDuplicateSerial) {
//	    // same device reported twice in one snapshot
//	}
var (
	// ErrEmptySerial is the rejection reason for a device without a serial.
	ErrEmptySerial = errors.New("tracking: empty serial")

	// ErrDuplicateSerial is the rejection reason for a serial seen earlier in the same snapshot.
	ErrDuplicateSerial = errors.New("tracking: duplicate serial")

	// ErrUnknownClass is returned when a device class value is not recognised.
	ErrUnknownClass = errors.New("tracking: unknown device class")

	// ErrUnknownBindingMode is returned when a binding mode string is not recognised.
	ErrUnknownBindingMode = errors.New("tracking: unknown binding mode")

	// ErrInvalidCapacity is returned when a slot capacity is negative.
	ErrInvalidCapacity = errors.New("tracking: invalid slot capacity")

	// ErrNoRuntime is returned when a Handler is created without a Runtime.
	ErrNoRuntime = errors.New("tracking: runtime is required")

	// ErrRuntimeDisconnected is recorded when a frame ran without a connected runtime.
	ErrRuntimeDisconnected = errors.New("tracking: runtime disconnected")
)
