// Package openvr connects the tracking handler to a VR tracking runtime
// through the headset-side bridge.
//
// The bridge runs next to the runtime, enumerates devices every runtime
// frame and publishes them over MQTT. Runtime implements tracking.Runtime
// by keeping the newest snapshot and the bridge's status:
//
//	tracker/runtime/status    {"status":"connected","runtime":"SteamVR"}
//	tracker/runtime/snapshot  {"frame":1,"devices":{"controller":[...]}}
//	tracker/runtime/config    {"controller_as_tracker":true}  (published here)
//
// A snapshot older than the stale window makes the runtime report itself
// disconnected, which the handler treats like a runtime shutdown.
package openvr
