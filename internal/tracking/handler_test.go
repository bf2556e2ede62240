package tracking

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"
)

func newTestHandler(t *testing.T, rt *fakeRuntime, mutate func(*Options)) *Handler {
	t.Helper()
	opts := Options{
		Runtime:         rt,
		Capacity:        Capacity{Controllers: 2, Trackers: 3, BaseStations: 2},
		SnapshotTimeout: 50 * time.Millisecond,
		Settings:        Settings{FlattenBaseStations: true},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h, err := NewHandler(opts)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return h
}

func fullSnapshot() Snapshot {
	return snapshot(map[DeviceClass][]DeviceInfo{
		ClassHMD:            {dev("HMD1", 0, 1.7, 0)},
		ClassController:     {dev("C1", -0.3, 1, 0), dev("C2", 0.3, 1, 0)},
		ClassGenericTracker: {dev("T1", 1, 0, 0), dev("T2", 2, 0, 0)},
		ClassBaseStation:    {devRot("B1", euler(30, 45, 10)), devRot("B2", euler(-20, 135, 5))},
	})
}

func TestNewHandler_Errors(t *testing.T) {
	if _, err := NewHandler(Options{}); !errors.Is(err, ErrNoRuntime) {
		t.Errorf("NewHandler(no runtime) error = %v, want ErrNoRuntime", err)
	}
	_, err := NewHandler(Options{Runtime: newFakeRuntime(), Capacity: Capacity{Trackers: -1}})
	if !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("NewHandler(negative capacity) error = %v, want ErrInvalidCapacity", err)
	}
}

func TestHandler_IdempotentUnderStableInput(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(fullSnapshot())
	h := newTestHandler(t, rt, nil)

	var moved []string
	h.Subscribe(func(s string) { moved = append(moved, s) })

	ctx := context.Background()
	h.Update(ctx)
	first := h.Slots()
	h.Update(ctx)
	second := h.Slots()

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("slots changed under identical input (-first +second):\n%s", diff)
	}
	if len(moved) != 0 {
		t.Errorf("moved = %v, want none", moved)
	}
}

func TestHandler_BindsEveryClass(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(fullSnapshot())
	h := newTestHandler(t, rt, nil)

	stats := h.Update(context.Background())

	if diff := cmp.Diff([]string{"C1", "C2"}, serials(h.Controllers())); diff != "" {
		t.Errorf("Controllers() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"T1", "T2"}, serials(h.Trackers())); diff != "" {
		t.Errorf("Trackers() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B1", "B2"}, serials(h.BaseStations())); diff != "" {
		t.Errorf("BaseStations() mismatch (-want +got):\n%s", diff)
	}
	if hmd := h.HMD(); !hmd.Bound || hmd.Serial != "HMD1" {
		t.Errorf("HMD() = %+v, want bound to HMD1", hmd)
	}
	if !stats.Connected {
		t.Error("stats.Connected = false, want true")
	}
	if stats.TotalBound() != 7 {
		t.Errorf("TotalBound() = %d, want 7", stats.TotalBound())
	}
	if stats.Frame != 1 {
		t.Errorf("Frame = %d, want 1", stats.Frame)
	}
}

func TestHandler_CountChangeReset(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{
		ClassGenericTracker: {dev("T1", 1, 0, 0), dev("T2", 2, 0, 0), dev("T3", 3, 0, 0)},
	}))
	h := newTestHandler(t, rt, nil)
	ctx := context.Background()
	h.Update(ctx)

	rt.set(snapshot(map[DeviceClass][]DeviceInfo{
		ClassGenericTracker: {dev("T3", 3, 0, 0)},
	}))
	h.Update(ctx)

	if diff := cmp.Diff([]string{"T3"}, serials(h.Trackers())); diff != "" {
		t.Errorf("Trackers() mismatch (-want +got):\n%s", diff)
	}
	got := h.Trackers()[0]
	if got.Index != 0 {
		t.Errorf("T3 slot index = %d, want 0", got.Index)
	}
	if got.Pose.Position.X != 3 {
		t.Errorf("T3 slot position = %v, want X=3", got.Pose.Position)
	}
}

func TestHandler_CapacityClamp(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{
		ClassController: {dev("C1", 0, 0, 0), dev("C2", 0, 0, 0), dev("C3", 0, 0, 0), dev("C4", 0, 0, 0)},
	}))
	h := newTestHandler(t, rt, nil)

	stats := h.Update(context.Background())

	if diff := cmp.Diff([]string{"C1", "C2"}, serials(h.Controllers())); diff != "" {
		t.Errorf("Controllers() mismatch (-want +got):\n%s", diff)
	}
	if stats.Dropped[ClassController] != 2 {
		t.Errorf("Dropped[controller] = %d, want 2", stats.Dropped[ClassController])
	}
	if stats.Seen[ClassController] != 4 {
		t.Errorf("Seen[controller] = %d, want 4", stats.Seen[ClassController])
	}
	if _, ok := h.FindSlotByName("C3"); ok {
		t.Error("FindSlotByName(C3) found a dropped device")
	}
}

func TestHandler_CameraControllerPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		bucket    DeviceClass
		wantClass DeviceClass
	}{
		{name: "from controllers", bucket: ClassController, wantClass: ClassController},
		{name: "from trackers", bucket: ClassGenericTracker, wantClass: ClassGenericTracker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			snap := snapshot(map[DeviceClass][]DeviceInfo{
				ClassController:     {dev("C1", 0, 0, 0)},
				ClassGenericTracker: {dev("T1", 0, 0, 0)},
			})
			snap[tt.bucket] = append([]DeviceInfo{dev("CAM", 4, 5, 6)}, snap[tt.bucket]...)
			rt.set(snap)

			h := newTestHandler(t, rt, func(o *Options) {
				o.Settings.CameraControllerSerial = "CAM"
			})
			stats := h.Update(context.Background())

			slot, binding := h.CameraController()
			if !slot.Bound || slot.Serial != "CAM" {
				t.Errorf("camera slot = %+v, want bound to CAM", slot)
			}
			if slot.Pose.Position != (r3.Vec{X: 4, Y: 5, Z: 6}) {
				t.Errorf("camera slot position = %v, want (4,5,6)", slot.Pose.Position)
			}
			if binding.BoundClass == nil || *binding.BoundClass != tt.wantClass {
				t.Errorf("BoundClass = %v, want %v", binding.BoundClass, tt.wantClass)
			}
			if stats.CameraControllerClass == nil || *stats.CameraControllerClass != tt.wantClass {
				t.Errorf("stats.CameraControllerClass = %v, want %v", stats.CameraControllerClass, tt.wantClass)
			}

			all := append(h.Controllers(), h.Trackers()...)
			for _, s := range all {
				if s.Serial == "CAM" {
					t.Errorf("camera controller also bound to %s", s.Label)
				}
			}
			if len(h.Controllers()) != 1 || len(h.Trackers()) != 1 {
				t.Errorf("Controllers()=%v Trackers()=%v, want one each", serials(h.Controllers()), serials(h.Trackers()))
			}

			found, ok := h.FindSlotByName("CAM")
			if !ok || found.Label != CameraControllerLabel {
				t.Errorf("FindSlotByName(CAM) = %+v, %v, want camera slot", found, ok)
			}
		})
	}
}

func TestHandler_CameraControllerAbsent(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassController: {dev("CAM", 0, 0, 0)}}))
	h := newTestHandler(t, rt, func(o *Options) { o.Settings.CameraControllerSerial = "CAM" })
	ctx := context.Background()
	h.Update(ctx)

	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassController: {dev("C1", 0, 0, 0)}}))
	stats := h.Update(ctx)

	slot, binding := h.CameraController()
	if slot.Bound {
		t.Error("camera slot bound while device absent")
	}
	if binding.BoundClass != nil || stats.CameraControllerClass != nil {
		t.Errorf("BoundClass = %v, want nil", binding.BoundClass)
	}
	if binding.ConfiguredSerial != "CAM" {
		t.Errorf("ConfiguredSerial = %q, want CAM", binding.ConfiguredSerial)
	}
}

func TestHandler_SetCameraControllerSerial(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassController: {dev("C1", 0, 0, 0), dev("C2", 0, 0, 0)}}))
	h := newTestHandler(t, rt, nil)
	ctx := context.Background()

	h.Update(ctx)
	if len(h.Controllers()) != 2 {
		t.Fatalf("Controllers() = %v, want two", serials(h.Controllers()))
	}

	h.SetCameraControllerSerial("C2")
	h.Update(ctx)

	if diff := cmp.Diff([]string{"C1"}, serials(h.Controllers())); diff != "" {
		t.Errorf("Controllers() mismatch (-want +got):\n%s", diff)
	}
	if slot, _ := h.CameraController(); slot.Serial != "C2" {
		t.Errorf("camera slot serial = %q, want C2", slot.Serial)
	}
}

func TestHandler_MotionThreshold(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHandler(t, rt, nil)

	var moved []string
	unsubscribe := h.Subscribe(func(s string) { moved = append(moved, s) })

	ctx := context.Background()
	steps := []struct {
		x    float64
		want int
	}{
		{x: 0, want: 0},    // first sighting records only
		{x: 0.05, want: 0}, // below threshold
		{x: 0.1, want: 0},  // equal is not greater
		{x: 0.15, want: 1}, // crosses, rebases to 0.15
		{x: 0.2, want: 1},  // 0.05 from new baseline
		{x: 0.3, want: 2},
	}
	for i, s := range steps {
		rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassGenericTracker: {dev("T1", s.x, 0, 0)}}))
		h.Update(ctx)
		if len(moved) != s.want {
			t.Fatalf("step %d (x=%v): moved = %v, want %d notifications", i, s.x, moved, s.want)
		}
	}

	unsubscribe()
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassGenericTracker: {dev("T1", 5, 0, 0)}}))
	stats := h.Update(ctx)
	if len(moved) != 2 {
		t.Errorf("notified after unsubscribe: %v", moved)
	}
	if diff := cmp.Diff([]string{"T1"}, stats.Moved); diff != "" {
		t.Errorf("stats.Moved mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_MotionOnCameraControllerWrites(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHandler(t, rt, func(o *Options) { o.Settings.CameraControllerSerial = "CAM" })

	var moved []string
	h.Subscribe(func(s string) { moved = append(moved, s) })

	ctx := context.Background()
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassController: {dev("CAM", 0, 0, 0)}}))
	h.Update(ctx)
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassController: {dev("CAM", 0, 0, 1)}}))
	h.Update(ctx)

	if diff := cmp.Diff([]string{"CAM"}, moved); diff != "" {
		t.Errorf("moved mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_BaseStationFlattening(t *testing.T) {
	for _, flatten := range []bool{true, false} {
		rt := newFakeRuntime()
		rot := euler(30, 45, 10)
		rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassBaseStation: {devRot("B1", rot)}}))
		h := newTestHandler(t, rt, func(o *Options) { o.Settings.FlattenBaseStations = flatten })

		h.Update(context.Background())

		got := h.BaseStations()[0].Pose.Rotation
		if !flatten {
			if got != rot {
				t.Errorf("flatten=false: rotation = %v, want verbatim %v", got, rot)
			}
			continue
		}
		if !approx(got.Imag, 0) || !approx(got.Kmag, 0) {
			t.Errorf("flatten=true: rotation = %v, want yaw only", got)
		}
		if d := Yaw(got) * 180 / math.Pi; math.Abs(d-45) > 1e-9 {
			t.Errorf("flatten=true: yaw = %v°, want 45°", d)
		}
	}
}

func TestHandler_FlatteningDoesNotTouchOtherClasses(t *testing.T) {
	rt := newFakeRuntime()
	rot := euler(30, 45, 10)
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassGenericTracker: {devRot("T1", rot)}}))
	h := newTestHandler(t, rt, nil)

	h.Update(context.Background())

	if got := h.Trackers()[0].Pose.Rotation; got != rot {
		t.Errorf("tracker rotation = %v, want verbatim %v", got, rot)
	}
}

func TestHandler_DisconnectedUnbindsEverything(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(fullSnapshot())
	h := newTestHandler(t, rt, func(o *Options) { o.Settings.CameraControllerSerial = "T2" })
	ctx := context.Background()
	h.Update(ctx)

	rt.setConnected(false)
	stats := h.Update(ctx)

	if stats.Connected {
		t.Error("stats.Connected = true, want false")
	}
	if n := len(h.Bound()); n != 0 {
		t.Errorf("Bound() = %d slots, want 0", n)
	}
	for _, list := range [][]SlotHandle{h.Controllers(), h.Trackers(), h.BaseStations()} {
		if len(list) != 0 {
			t.Errorf("bound list = %v, want empty", serials(list))
		}
	}
	if h.Connected() {
		t.Error("Connected() = true, want false")
	}

	// The HMD and camera slots keep their last name and pose.
	hmd, ok := h.FindSlotByName("HMD1")
	if !ok || hmd.Bound || hmd.Pose.Position.Y != 1.7 {
		t.Errorf("FindSlotByName(HMD1) = %+v, %v, want unbound HMD slot with last pose", hmd, ok)
	}
	if _, ok := h.FindSlotByName("T2"); !ok {
		t.Error("FindSlotByName(T2) did not resolve the unbound camera slot")
	}
	if _, ok := h.FindSlotByName("C1"); ok {
		t.Error("FindSlotByName(C1) resolved an unbound controller slot")
	}
}

func TestHandler_DisconnectedSkipsSnapshot(t *testing.T) {
	rt := newFakeRuntime()
	rt.setConnected(false)
	h := newTestHandler(t, rt, nil)
	rt.resetCalls()

	h.Update(context.Background())

	for _, call := range rt.callLog() {
		if call == "Snapshot" {
			t.Error("Snapshot() called while runtime disconnected")
		}
	}
}

func TestHandler_SnapshotFailureUnbinds(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeRuntime)
	}{
		{name: "error", setup: func(rt *fakeRuntime) { rt.err = errors.New("ipc closed") }},
		{name: "timeout", setup: func(rt *fakeRuntime) { rt.block = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.set(fullSnapshot())
			h := newTestHandler(t, rt, func(o *Options) { o.SnapshotTimeout = 10 * time.Millisecond })
			ctx := context.Background()
			h.Update(ctx)

			rt.mu.Lock()
			tt.setup(rt)
			rt.mu.Unlock()

			stats := h.Update(ctx)
			if stats.SnapshotError == "" {
				t.Error("SnapshotError empty, want failure recorded")
			}
			if !stats.Connected {
				t.Error("stats.Connected = false, want true")
			}
			if n := len(h.Bound()); n != 0 {
				t.Errorf("Bound() = %d slots, want 0", n)
			}
		})
	}
}

func TestHandler_FindSlotByName(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(fullSnapshot())
	h := newTestHandler(t, rt, nil)
	h.Update(context.Background())

	tests := []struct {
		name      string
		wantLabel string
		wantOK    bool
	}{
		{name: "HMD1", wantLabel: HMDLabel, wantOK: true},
		{name: "C2", wantLabel: "controller_1", wantOK: true},
		{name: "T1", wantLabel: "tracker_0", wantOK: true},
		{name: "B2", wantLabel: "base_station_1", wantOK: true},
		{name: "tracker_2", wantOK: false},
		{name: "missing", wantOK: false},
		{name: "", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := h.FindSlotByName(tt.name)
		if ok != tt.wantOK {
			t.Errorf("FindSlotByName(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if ok && got.Label != tt.wantLabel {
			t.Errorf("FindSlotByName(%q) label = %q, want %q", tt.name, got.Label, tt.wantLabel)
		}
	}
}

func TestHandler_RejectsDuplicatesAtBoundary(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{
		ClassController:     {dev("X", 1, 0, 0), dev("", 0, 0, 0)},
		ClassGenericTracker: {dev("X", 2, 0, 0), dev("T1", 0, 0, 0)},
	}))
	h := newTestHandler(t, rt, nil)

	stats := h.Update(context.Background())

	if stats.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", stats.Rejected)
	}
	if diff := cmp.Diff([]string{"X"}, serials(h.Controllers())); diff != "" {
		t.Errorf("Controllers() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"T1"}, serials(h.Trackers())); diff != "" {
		t.Errorf("Trackers() mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_FrameCallOrder(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHandler(t, rt, func(o *Options) { o.Settings.ControllerAsTracker = true })
	rt.resetCalls()

	h.Update(context.Background())

	want := []string{"PollEvents", "SetControllerAsTracker", "IsConnected", "Snapshot"}
	if diff := cmp.Diff(want, rt.callLog()); diff != "" {
		t.Errorf("runtime call order mismatch (-want +got):\n%s", diff)
	}

	h.SetSettings(Settings{ControllerAsTracker: false})
	h.Update(context.Background())

	rt.mu.Lock()
	got := append([]bool(nil), rt.controllerAsTracker...)
	rt.mu.Unlock()
	if diff := cmp.Diff([]bool{true, false}, got); diff != "" {
		t.Errorf("SetControllerAsTracker calls mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_UpdateSettings(t *testing.T) {
	h := newTestHandler(t, newFakeRuntime(), nil)

	before, after := h.UpdateSettings(func(s Settings) Settings {
		s.CameraControllerSerial = "CAM"
		return s
	})
	if before != (Settings{FlattenBaseStations: true}) {
		t.Errorf("before = %+v", before)
	}
	want := Settings{CameraControllerSerial: "CAM", FlattenBaseStations: true}
	if after != want || h.Settings() != want {
		t.Errorf("after = %+v, Settings() = %+v, want %+v", after, h.Settings(), want)
	}
}

func TestHandler_StrictMode(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHandler(t, rt, func(o *Options) { o.Mode = BindingStrict })
	ctx := context.Background()

	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassGenericTracker: {dev("T1", 0, 0, 0), dev("T2", 0, 0, 0)}}))
	h.Update(ctx)
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassGenericTracker: {dev("T2", 0, 0, 0)}}))
	h.Update(ctx)

	got := h.Trackers()
	if len(got) != 1 || got[0].Serial != "T2" || got[0].Index != 1 {
		t.Errorf("Trackers() = %+v, want T2 kept on slot 1", got)
	}
}

func TestHandler_Baselines(t *testing.T) {
	store := newMemBaselines(Baseline{Serial: "T1", Position: r3.Vec{X: 1}})
	rt := newFakeRuntime()
	h := newTestHandler(t, rt, func(o *Options) { o.Baselines = store })
	ctx := context.Background()

	n, err := h.LoadBaselines(ctx)
	if err != nil {
		t.Fatalf("LoadBaselines() error = %v", err)
	}
	if n != 1 {
		t.Errorf("LoadBaselines() = %d, want 1", n)
	}

	var moved []string
	h.Subscribe(func(s string) { moved = append(moved, s) })

	// Restored baseline makes the first sighting of T1 comparable.
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassGenericTracker: {dev("T1", 2, 0, 0), dev("T2", 0, 0, 0)}}))
	h.Update(ctx)

	if diff := cmp.Diff([]string{"T1"}, moved); diff != "" {
		t.Errorf("moved mismatch (-want +got):\n%s", diff)
	}
	if b, ok := store.get("T1"); !ok || b.Position.X != 2 {
		t.Errorf("stored T1 baseline = %+v, want X=2", b)
	}
	if _, ok := store.get("T2"); !ok {
		t.Error("first sighting of T2 not persisted")
	}
	if b, ok := h.MotionBaseline("T1"); !ok || b.Position.X != 2 {
		t.Errorf("MotionBaseline(T1) = %+v, want X=2", b)
	}

	// No baseline change, no write.
	saves := store.saves
	h.Update(ctx)
	if store.saves != saves {
		t.Errorf("saves = %d, want %d", store.saves, saves)
	}
}

func TestHandler_MotionBaselineUpdatedAt(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHandler(t, rt, nil)
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	h.motion.now = func() time.Time { return clock }
	ctx := context.Background()

	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassController: {dev("C1", 0, 1, 0)}}))
	h.Update(ctx)

	b, ok := h.MotionBaseline("C1")
	if !ok {
		t.Fatal("MotionBaseline(C1) not found after first observation")
	}
	if b.Serial != "C1" || !b.UpdatedAt.Equal(clock) {
		t.Errorf("MotionBaseline(C1) = %+v, want serial C1 at %v", b, clock)
	}

	clock = clock.Add(time.Second)
	rt.set(snapshot(map[DeviceClass][]DeviceInfo{ClassController: {dev("C1", 1, 1, 0)}}))
	h.Update(ctx)

	b, _ = h.MotionBaseline("C1")
	if !b.UpdatedAt.Equal(clock) || b.Position.X != 1 {
		t.Errorf("MotionBaseline(C1) after rebase = %+v, want X=1 at %v", b, clock)
	}
}

func TestHandler_Observers(t *testing.T) {
	rt := newFakeRuntime()
	rt.set(fullSnapshot())
	h := newTestHandler(t, rt, nil)

	var gotStats FrameStats
	var gotBound []SlotHandle
	h.AddObserver(FrameObserverFunc(func(s FrameStats, b []SlotHandle) {
		gotStats = s
		gotBound = b
	}))

	h.Update(context.Background())

	if gotStats.Frame != 1 {
		t.Errorf("observer Frame = %d, want 1", gotStats.Frame)
	}
	if len(gotBound) != 7 {
		t.Errorf("observer bound = %d, want 7", len(gotBound))
	}
	if diff := cmp.Diff(gotStats, h.LastStats()); diff != "" {
		t.Errorf("LastStats() differs from observed stats (-observed +last):\n%s", diff)
	}
}

func TestHandler_RuntimeEvents(t *testing.T) {
	rt := newFakeRuntime()
	rt.events = []RuntimeEvent{{Kind: RuntimeDisconnected}, {Kind: RuntimeConnected}}
	h := newTestHandler(t, rt, nil)

	h.Update(context.Background())

	rt.mu.Lock()
	left := len(rt.events)
	rt.mu.Unlock()
	if left != 0 {
		t.Errorf("events left in queue = %d, want 0", left)
	}
}

func TestHandler_Run(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHandler(t, rt, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for h.LastStats().Frame < 3 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("Run() did not advance frames")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if err := h.Run(context.Background(), 0); err == nil {
		t.Error("Run(interval=0) error = nil, want error")
	}
}
