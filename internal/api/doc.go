// Package api provides the HTTP API and WebSocket feed for Tracker Core.
//
// Scene clients use it to resolve slots by device name, list the bound
// devices of each class, read the last frame's statistics and change the
// runtime toggles:
//
//	GET   /api/v1/health
//	GET   /api/v1/stats
//	GET   /api/v1/slots[?bound=true]
//	GET   /api/v1/slots/{name}
//	GET   /api/v1/controllers | /trackers | /base-stations
//	GET   /api/v1/hmd
//	GET   /api/v1/camera-controller
//	GET   /api/v1/baselines/{serial}
//	GET   /api/v1/settings
//	PATCH /api/v1/settings
//	GET   /api/v1/ws
//	GET   /metrics
//
// WebSocket clients subscribe to channels ("tracker.moved",
// "settings.changed") and receive events as they happen.
//
// The server has no authentication and is meant to listen on loopback or a
// trusted studio network.
package api
