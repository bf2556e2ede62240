package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nerrad567/tracker-core/internal/api"
	"github.com/nerrad567/tracker-core/internal/bridges/openvr"
	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
	"github.com/nerrad567/tracker-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
	"github.com/nerrad567/tracker-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tracker-core/internal/tracking"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv(configEnvVar, "")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv(configEnvVar, "/etc/tracker/config.yaml")

	if got := getConfigPath(); got != "/etc/tracker/config.yaml" {
		t.Errorf("getConfigPath() = %q, want /etc/tracker/config.yaml", got)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "trackercore "+version) {
		t.Errorf("version output = %q", out)
	}
}

func TestCheckConfigCommand(t *testing.T) {
	valid := writeConfig(t, `
site:
  id: stage-7
tracking:
  binding_mode: strict
  frame_rate_hz: 60
`)
	invalid := writeConfig(t, `
site:
  id: stage-7
tracking:
  binding_mode: sticky
`)

	out, err := execute(t, "check-config", "--config", valid)
	if err != nil {
		t.Fatalf("check-config(valid) error = %v", err)
	}
	if !strings.Contains(out, "site stage-7, strict binding, 60 Hz") {
		t.Errorf("check-config output = %q", out)
	}

	if _, err := execute(t, "check-config", "--config", invalid); err == nil {
		t.Error("check-config(invalid) should fail")
	}
	if _, err := execute(t, "check-config", "--config", "/nonexistent/config.yaml"); err == nil {
		t.Error("check-config(missing) should fail")
	}
}

func TestMigrateCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tracker.db")
	path := writeConfig(t, `
site:
  id: stage-7
database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
`)

	out, err := execute(t, "migrate", "status", "--config", path)
	if err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	if !strings.Contains(out, "pending") || !strings.Contains(out, "motion_baselines") {
		t.Errorf("migrate status before = %q, want pending motion_baselines", out)
	}

	if _, err := execute(t, "migrate", "--config", path); err != nil {
		t.Fatalf("migrate error = %v", err)
	}

	out, err = execute(t, "migrate", "status", "--config", path)
	if err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	if strings.Contains(out, "pending") || !strings.Contains(out, "applied") {
		t.Errorf("migrate status after = %q, want only applied", out)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{Tracking: config.TrackingConfig{
		CameraControllerSerial:     "LHR-CAM",
		DisableBaseStationRotation: true,
		HandleControllerAsTracker:  true,
	}}

	want := tracking.Settings{
		CameraControllerSerial: "LHR-CAM",
		FlattenBaseStations:    true,
		ControllerAsTracker:    true,
	}
	if diff := cmp.Diff(want, settingsFromConfig(cfg)); diff != "" {
		t.Errorf("settingsFromConfig() mismatch (-want +got):\n%s", diff)
	}
}

type fakeSettings struct {
	s    tracking.Settings
	sets int
}

func (f *fakeSettings) UpdateSettings(fn func(tracking.Settings) tracking.Settings) (before, after tracking.Settings) {
	before = f.s
	f.s = fn(before)
	if f.s != before {
		f.sets++
	}
	return before, f.s
}

func TestApplyReload(t *testing.T) {
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
	sink := &fakeSettings{}

	next := &config.Config{Tracking: config.TrackingConfig{CameraControllerSerial: "LHR-CAM"}}
	applyReload(sink, nil, next, log)
	if sink.sets != 1 || sink.s.CameraControllerSerial != "LHR-CAM" {
		t.Fatalf("after reload: sets = %d, settings = %+v", sink.sets, sink.s)
	}

	applyReload(sink, nil, next, log)
	if sink.sets != 1 {
		t.Errorf("sets = %d, want 1 when nothing changed", sink.sets)
	}
}

// bridgeBroker is an always-connected broker that records subscriptions.
type bridgeBroker struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
}

func (b *bridgeBroker) Publish(string, []byte, byte, bool) error { return nil }

func (b *bridgeBroker) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
	return nil
}

func (b *bridgeBroker) IsConnected() bool { return true }

func (b *bridgeBroker) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler for %s", topic)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler(%s) error = %v", topic, err)
	}
}

func TestBridgeHealth_RuntimeDisconnectedIsHealthy(t *testing.T) {
	broker := &bridgeBroker{handlers: make(map[string]mqtt.MessageHandler)}
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	runtime, err := openvr.New(openvr.Options{Client: broker, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("openvr.New() error = %v", err)
	}
	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	check := bridgeHealth(runtime, 30*time.Second)

	now = now.Add(10 * time.Second)
	broker.deliver(t, mqtt.Topics{}.RuntimeStatus(), `{"status":"disconnected"}`)
	if runtime.IsConnected() {
		t.Fatal("IsConnected() = true, want false while the VR runtime is down")
	}
	if err := check(context.Background()); err != nil {
		t.Errorf("check() = %v, want nil while the bridge keeps reporting", err)
	}

	now = now.Add(31 * time.Second)
	if err := check(context.Background()); !errors.Is(err, openvr.ErrBridgeSilent) {
		t.Errorf("check() = %v, want ErrBridgeSilent", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := check(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("check(cancelled) = %v, want context.Canceled", err)
	}
}

func TestBridgeSilence(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     time.Duration
	}{
		{10 * time.Second, 30 * time.Second},
		{0, 90 * time.Second},
	}
	for _, tt := range tests {
		got := bridgeSilence(config.BridgeProcessConfig{HealthCheckInterval: tt.interval})
		if got != tt.want {
			t.Errorf("bridgeSilence(%v) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}

// fakeSource stands in for the tracking handler.
type fakeSource struct {
	mu         sync.Mutex
	subscribed chan tracking.MovedFunc
	observers  []tracking.FrameObserver
	baselines  map[string]tracking.Baseline
	slots      map[string]tracking.SlotHandle
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		subscribed: make(chan tracking.MovedFunc, 1),
		baselines:  make(map[string]tracking.Baseline),
		slots:      make(map[string]tracking.SlotHandle),
	}
}

func (f *fakeSource) Subscribe(fn tracking.MovedFunc) func() {
	f.subscribed <- fn
	return func() {}
}

func (f *fakeSource) AddObserver(o tracking.FrameObserver) {
	f.mu.Lock()
	f.observers = append(f.observers, o)
	f.mu.Unlock()
}

func (f *fakeSource) MotionBaseline(serial string) (tracking.Baseline, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.baselines[serial]
	return b, ok
}

func (f *fakeSource) FindSlotByName(name string) (tracking.SlotHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[name]
	return s, ok
}

func (f *fakeSource) setBaseline(serial string, pos r3.Vec) {
	f.mu.Lock()
	f.baselines[serial] = tracking.Baseline{Serial: serial, Position: pos}
	f.mu.Unlock()
}

type fakePublisher struct {
	topics chan string
	events chan MovedEvent
}

func (p *fakePublisher) PublishJSON(topic string, v any, _ bool) error {
	p.topics <- topic
	p.events <- v.(MovedEvent)
	return nil
}

type fakeHub struct {
	mu       sync.Mutex
	channels []string
}

func (h *fakeHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	h.channels = append(h.channels, channel)
	h.mu.Unlock()
}

type fakeInflux struct {
	mu        sync.Mutex
	distances []float64
	frames    []influxdb.FrameSample
	poses     []influxdb.SlotPose
}

func (f *fakeInflux) WriteMoved(_ string, distance float64, _ time.Time) {
	f.mu.Lock()
	f.distances = append(f.distances, distance)
	f.mu.Unlock()
}

func (f *fakeInflux) WriteFrame(s influxdb.FrameSample, _ time.Time) {
	f.frames = append(f.frames, s)
}

func (f *fakeInflux) WriteSlotPose(p influxdb.SlotPose, _ time.Time) {
	f.poses = append(f.poses, p)
}

func TestMovedRelay(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{topics: make(chan string, 1), events: make(chan MovedEvent, 1)}
	hub := &fakeHub{}
	influx := &fakeInflux{}

	relay := newMovedRelay(src, logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard))
	relay.publisher = pub
	relay.hub = hub
	relay.influx = influx

	relay.attach()
	var notify tracking.MovedFunc
	select {
	case notify = <-src.subscribed:
	default:
		t.Fatal("relay did not subscribe")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	// First frame: the device appears and its baseline is recorded.
	src.setBaseline("LHR-1", r3.Vec{X: 1})
	slot := tracking.SlotHandle{
		Label:  "tracker_0",
		Class:  tracking.ClassGenericTracker,
		Name:   "LHR-1",
		Serial: "LHR-1",
		Bound:  true,
		Pose:   tracking.Pose{Position: r3.Vec{X: 1, Z: 0.5}, Rotation: quat.Number{Real: 1}},
	}
	for _, o := range src.observers {
		o.ObserveFrame(tracking.FrameStats{}, []tracking.SlotHandle{slot})
	}

	// Later frame: the device moved half a metre and was rebased.
	src.setBaseline("LHR-1", r3.Vec{X: 1, Z: 0.5})
	src.mu.Lock()
	src.slots["LHR-1"] = slot
	src.mu.Unlock()
	notify("LHR-1")

	var ev MovedEvent
	select {
	case topic := <-pub.topics:
		if want := (mqtt.Topics{}).TrackerMoved("LHR-1"); topic != want {
			t.Errorf("topic = %q, want %q", topic, want)
		}
		ev = <-pub.events
	case <-time.After(time.Second):
		t.Fatal("moved event not published")
	}

	want := MovedEvent{Serial: "LHR-1", Slot: "tracker_0", Pose: slot.Pose, Distance: 0.5}
	if diff := cmp.Diff(want, ev, cmpopts.IgnoreFields(MovedEvent{}, "ID", "Timestamp")); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
	if ev.ID == "" {
		t.Error("event ID is empty")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	hub.mu.Lock()
	if len(hub.channels) != 1 || hub.channels[0] != api.ChannelMoved {
		t.Errorf("broadcast channels = %v, want [%s]", hub.channels, api.ChannelMoved)
	}
	hub.mu.Unlock()

	influx.mu.Lock()
	if len(influx.distances) != 1 || influx.distances[0] != 0.5 {
		t.Errorf("influx distances = %v, want [0.5]", influx.distances)
	}
	influx.mu.Unlock()
}

func TestMovedRelay_AttachBeforeRun(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{topics: make(chan string, 1), events: make(chan MovedEvent, 1)}
	relay := newMovedRelay(src, logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard))
	relay.publisher = pub

	relay.attach()

	src.mu.Lock()
	observers := len(src.observers)
	src.mu.Unlock()
	if observers != 1 {
		t.Fatalf("observers = %d after attach, want 1", observers)
	}

	// A notification raised by the first frame, before Run is scheduled.
	var notify tracking.MovedFunc
	select {
	case notify = <-src.subscribed:
	default:
		t.Fatal("attach did not subscribe")
	}
	notify("LHR-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	select {
	case topic := <-pub.topics:
		if want := (mqtt.Topics{}).TrackerMoved("LHR-1"); topic != want {
			t.Errorf("topic = %q, want %q", topic, want)
		}
		<-pub.events
	case <-time.After(time.Second):
		t.Fatal("event queued before Run was not published")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestMovedRelay_QueueFull(t *testing.T) {
	relay := newMovedRelay(newFakeSource(), logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard))

	for i := 0; i < relayQueueSize+5; i++ {
		relay.enqueue("LHR-1")
	}
	if len(relay.queue) != relayQueueSize {
		t.Errorf("queue length = %d, want %d", len(relay.queue), relayQueueSize)
	}
}

func TestMovedRelay_UnknownSerial(t *testing.T) {
	relay := newMovedRelay(newFakeSource(), logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard))

	ev := relay.event("LHR-9")
	if ev.Slot != "" || ev.Distance != 0 {
		t.Errorf("event = %+v, want no slot and zero distance", ev)
	}
}

func TestPoseTelemetry(t *testing.T) {
	w := &fakeInflux{}
	tel := newPoseTelemetry(w, 3)

	bound := []tracking.SlotHandle{{
		Label:  "controller_0",
		Class:  tracking.ClassController,
		Serial: "LHR-C0",
		Bound:  true,
		Pose:   tracking.Pose{Position: r3.Vec{X: 1, Y: 2, Z: 3}, Rotation: quat.Number{Real: 1}},
	}}

	for frame := uint64(1); frame <= 6; frame++ {
		stats := tracking.FrameStats{
			Frame:     frame,
			Connected: true,
			Seen:      map[tracking.DeviceClass]int{tracking.ClassController: 2},
			Bound:     map[tracking.DeviceClass]int{tracking.ClassController: 1},
			Dropped:   map[tracking.DeviceClass]int{tracking.ClassController: 1},
		}
		tel.ObserveFrame(stats, bound)
	}

	if len(w.frames) != 6 {
		t.Errorf("frame samples = %d, want 6", len(w.frames))
	}
	if len(w.poses) != 2 {
		t.Fatalf("pose samples = %d, want 2 (frames 3 and 6)", len(w.poses))
	}

	wantFrame := influxdb.FrameSample{Frame: 1, Connected: true, Seen: 2, Bound: 1, Dropped: 1}
	if diff := cmp.Diff(wantFrame, w.frames[0]); diff != "" {
		t.Errorf("frame sample mismatch (-want +got):\n%s", diff)
	}

	wantPose := influxdb.SlotPose{
		Label:    "controller_0",
		Class:    tracking.ClassController.String(),
		Serial:   "LHR-C0",
		Position: [3]float64{1, 2, 3},
		Rotation: [4]float64{0, 0, 0, 1},
	}
	if diff := cmp.Diff(wantPose, w.poses[0]); diff != "" {
		t.Errorf("pose mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPoseTelemetry_MinimumOne(t *testing.T) {
	if got := newPoseTelemetry(&fakeInflux{}, 0).every; got != 1 {
		t.Errorf("every = %d, want 1", got)
	}
}
