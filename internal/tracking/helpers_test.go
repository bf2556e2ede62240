package tracking

import (
	"context"
	"math"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// fakeRuntime is a scriptable Runtime.
type fakeRuntime struct {
	mu        sync.Mutex
	connected bool
	snap      Snapshot
	err       error
	block     bool
	events    []RuntimeEvent

	calls               []string
	controllerAsTracker []bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{connected: true, snap: EmptySnapshot()}
}

func (f *fakeRuntime) set(s Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func (f *fakeRuntime) setConnected(c bool) {
	f.mu.Lock()
	f.connected = c
	f.mu.Unlock()
}

func (f *fakeRuntime) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "IsConnected")
	return f.connected
}

func (f *fakeRuntime) PollEvents() []RuntimeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "PollEvents")
	out := f.events
	f.events = nil
	return out
}

func (f *fakeRuntime) Snapshot(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	block, err, snap := f.block, f.err, f.snap
	f.calls = append(f.calls, "Snapshot")
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return snap.Clone(), nil
}

func (f *fakeRuntime) SetControllerAsTracker(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "SetControllerAsTracker")
	f.controllerAsTracker = append(f.controllerAsTracker, enabled)
}

func (f *fakeRuntime) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeRuntime) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// memBaselines is an in-memory BaselineStore.
type memBaselines struct {
	mu    sync.Mutex
	rows  map[string]Baseline
	saves int
}

func newMemBaselines(seed ...Baseline) *memBaselines {
	m := &memBaselines{rows: make(map[string]Baseline)}
	for _, b := range seed {
		m.rows[b.Serial] = b
	}
	return m
}

func (m *memBaselines) LoadBaselines(context.Context) ([]Baseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Baseline, 0, len(m.rows))
	for _, b := range m.rows {
		out = append(out, b)
	}
	return out, nil
}

func (m *memBaselines) SaveBaselines(_ context.Context, bs []Baseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	for _, b := range bs {
		m.rows[b.Serial] = b
	}
	return nil
}

func (m *memBaselines) get(serial string) (Baseline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[serial]
	return b, ok
}

func dev(serial string, x, y, z float64) DeviceInfo {
	return DeviceInfo{
		Serial: serial,
		Pose:   Pose{Position: r3.Vec{X: x, Y: y, Z: z}, Rotation: IdentityRotation},
	}
}

func devRot(serial string, rot quat.Number) DeviceInfo {
	return DeviceInfo{Serial: serial, Pose: Pose{Rotation: rot}}
}

// euler builds a rotation from degrees the way the scene engine does:
// Z first, then X, then Y.
func euler(xDeg, yDeg, zDeg float64) quat.Number {
	axis := func(deg float64, i, j, k float64) quat.Number {
		half := deg * math.Pi / 360
		s := math.Sin(half)
		return quat.Number{Real: math.Cos(half), Imag: i * s, Jmag: j * s, Kmag: k * s}
	}
	qx := axis(xDeg, 1, 0, 0)
	qy := axis(yDeg, 0, 1, 0)
	qz := axis(zDeg, 0, 0, 1)
	return quat.Mul(qy, quat.Mul(qx, qz))
}

func snapshot(byClass map[DeviceClass][]DeviceInfo) Snapshot {
	s := EmptySnapshot()
	for c, devs := range byClass {
		s[c] = devs
	}
	return s
}

func serials(hs []SlotHandle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Serial
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
