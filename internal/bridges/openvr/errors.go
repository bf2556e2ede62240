package openvr

import "errors"

var (
	// ErrNoSnapshot is returned when no snapshot has arrived yet.
	ErrNoSnapshot = errors.New("openvr: no snapshot received")

	// ErrStaleSnapshot is returned when the newest snapshot is older than
	// the configured stale window.
	ErrStaleSnapshot = errors.New("openvr: snapshot is stale")

	// ErrInvalidMessage is returned for payloads that do not decode.
	ErrInvalidMessage = errors.New("openvr: invalid message")

	// ErrBridgeSilent is returned when the bridge has published nothing for
	// longer than the allowed window.
	ErrBridgeSilent = errors.New("openvr: bridge silent")

	ErrNilClient = errors.New("openvr: mqtt client is nil")
)
