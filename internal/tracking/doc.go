// Package tracking maps the devices reported by a VR tracking runtime onto a
// fixed set of scene slots.
//
// Every frame the Handler pulls one Snapshot from the Runtime and runs, in
// order:
//
//  1. validation (empty and duplicate serials are rejected, first occurrence wins)
//  2. camera-controller extraction
//  3. per-class reconciliation for HMD, controllers, generic trackers and base stations
//  4. the base-station yaw-only policy
//
// Every slot write feeds the MotionDetector, which reports a device as moved
// once it has drifted more than the configured threshold from the last
// recorded baseline. Subscribers registered with Handler.Subscribe receive
// those serials after the frame completes.
//
// # Binding
//
// Positional binding (the default) writes runtime index i to slot i and
// resets the whole class whenever the device count changes. Strict binding
// keeps a serial on its slot while the serial remains visible.
//
// # Thread Safety
//
// Update must not run concurrently with itself; the Handler serialises calls.
// Queries (FindSlotByName, Controllers, Stats and friends) are safe from any
// goroutine and observe the state of the last completed frame.
package tracking
