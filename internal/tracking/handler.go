package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Handler.
// This allows the tracking package to remain decoupled from the logging implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Slot labels for the single-slot destinations.
const (
	CameraControllerLabel = "camera_controller"
	HMDLabel              = "hmd"
)

// Defaults applied by NewHandler for zero-valued options.
const (
	DefaultSnapshotTimeout = 5 * time.Millisecond
	baselineSaveTimeout    = 2 * time.Second
)

// RuntimeEventKind identifies a tracking runtime connection transition.
type RuntimeEventKind int

const (
	RuntimeConnected RuntimeEventKind = iota + 1
	RuntimeDisconnected
)

// String returns a short name for the event kind.
func (k RuntimeEventKind) String() string {
	switch k {
	case RuntimeConnected:
		return "connected"
	case RuntimeDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// RuntimeEvent is a queued runtime transition returned by PollEvents.
type RuntimeEvent struct {
	Kind RuntimeEventKind
	At   time.Time
}

// Runtime is the tracking runtime the Handler consumes.
type Runtime interface {
	// IsConnected reports whether the runtime is currently delivering data.
	IsConnected() bool

	// PollEvents drains queued runtime events. It is called once per frame
	// before anything else.
	PollEvents() []RuntimeEvent

	// Snapshot returns the devices for the current frame. The returned
	// snapshot is owned by the caller.
	Snapshot(ctx context.Context) (Snapshot, error)

	// SetControllerAsTracker forwards the controller-as-tracker toggle.
	// It is called every frame with the current setting.
	SetControllerAsTracker(enabled bool)
}

// Capacity is the number of slots per multi-slot class.
type Capacity struct {
	Controllers  int `json:"controllers"`
	Trackers     int `json:"trackers"`
	BaseStations int `json:"base_stations"`
}

// DefaultCapacity returns two controllers, eight trackers and four base stations.
func DefaultCapacity() Capacity {
	return Capacity{Controllers: 2, Trackers: 8, BaseStations: 4}
}

// Settings are the runtime-mutable toggles read at the start of each frame.
type Settings struct {
	CameraControllerSerial string `json:"camera_controller_serial"`
	FlattenBaseStations    bool   `json:"flatten_base_stations"`
	ControllerAsTracker    bool   `json:"controller_as_tracker"`
}

// Options configures a Handler.
type Options struct {
	Runtime  Runtime
	Capacity Capacity
	Mode     BindingMode

	// MotionThreshold defaults to DefaultMotionThreshold.
	MotionThreshold float64

	// SnapshotTimeout bounds snapshot acquisition per frame.
	// Defaults to DefaultSnapshotTimeout.
	SnapshotTimeout time.Duration

	Settings Settings

	// Baselines, when set, receives every baseline change and is read by
	// LoadBaselines.
	Baselines BaselineStore

	Logger Logger
}

// Handler runs the per-frame reconciliation and answers slot queries.
//
// Thread Safety:
//   - Update calls are serialised.
//   - All query methods are safe for concurrent use.
type Handler struct {
	runtime         Runtime
	mode            BindingMode
	snapshotTimeout time.Duration
	baselines       BaselineStore
	logger          Logger
	now             func() time.Time

	frameMu sync.Mutex

	mu          sync.RWMutex
	settings    Settings
	camera      *SlotGroup
	cameraClass *DeviceClass
	hmd         *SlotGroup
	groups      map[DeviceClass]*SlotGroup
	motion      *MotionDetector
	connected   bool
	frame       uint64
	last        FrameStats

	observersMu sync.RWMutex
	observers   []FrameObserver

	feed *movedFeed
}

// NewHandler creates a Handler with all slots allocated and unbound.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Runtime == nil {
		return nil, ErrNoRuntime
	}

	controllers, err := NewSlotGroup(ClassController, "controller", opts.Capacity.Controllers)
	if err != nil {
		return nil, err
	}
	trackers, err := NewSlotGroup(ClassGenericTracker, "tracker", opts.Capacity.Trackers)
	if err != nil {
		return nil, err
	}
	stations, err := NewSlotGroup(ClassBaseStation, "base_station", opts.Capacity.BaseStations)
	if err != nil {
		return nil, err
	}

	timeout := opts.SnapshotTimeout
	if timeout <= 0 {
		timeout = DefaultSnapshotTimeout
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	hmd := newSingleSlotGroup(ClassHMD, HMDLabel)

	return &Handler{
		runtime:         opts.Runtime,
		mode:            opts.Mode,
		snapshotTimeout: timeout,
		baselines:       opts.Baselines,
		logger:          logger,
		now:             time.Now,
		settings:        opts.Settings,
		camera:          newSingleSlotGroup(ClassController, CameraControllerLabel),
		hmd:             hmd,
		groups: map[DeviceClass]*SlotGroup{
			ClassHMD:            hmd,
			ClassController:     controllers,
			ClassGenericTracker: trackers,
			ClassBaseStation:    stations,
		},
		motion: NewMotionDetector(opts.MotionThreshold),
		last:   newFrameStats(0, time.Time{}),
		feed:   newMovedFeed(),
	}, nil
}

// SetLogger sets the logger for the handler.
func (h *Handler) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	h.frameMu.Lock()
	h.logger = logger
	h.frameMu.Unlock()
}

// AddObserver registers an observer called after every frame.
func (h *Handler) AddObserver(o FrameObserver) {
	h.observersMu.Lock()
	h.observers = append(h.observers, o)
	h.observersMu.Unlock()
}

// Subscribe registers fn for moved notifications. The returned function
// removes the subscription; calling it more than once is harmless.
// Callbacks run on the frame goroutine after the frame completes.
func (h *Handler) Subscribe(fn MovedFunc) (unsubscribe func()) {
	return h.feed.subscribe(fn)
}

// Settings returns the current runtime-mutable settings.
func (h *Handler) Settings() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

// SetSettings replaces the runtime-mutable settings. The change applies
// from the next frame.
func (h *Handler) SetSettings(s Settings) {
	h.mu.Lock()
	h.settings = s
	h.mu.Unlock()
}

// UpdateSettings applies fn to the current settings under the settings lock
// and stores the result. It returns the settings before and after.
func (h *Handler) UpdateSettings(fn func(Settings) Settings) (before, after Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	before = h.settings
	h.settings = fn(before)
	return before, h.settings
}

// SetCameraControllerSerial changes only the camera-controller serial.
func (h *Handler) SetCameraControllerSerial(serial string) {
	h.mu.Lock()
	h.settings.CameraControllerSerial = serial
	h.mu.Unlock()
}

// LoadBaselines seeds the motion detector from the baseline store.
// It is a no-op without a store.
func (h *Handler) LoadBaselines(ctx context.Context) (int, error) {
	if h.baselines == nil {
		return 0, nil
	}
	baselines, err := h.baselines.LoadBaselines(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading baselines: %w", err)
	}

	h.frameMu.Lock()
	h.mu.Lock()
	h.motion.Restore(baselines)
	h.mu.Unlock()
	h.frameMu.Unlock()

	return len(baselines), nil
}

// Run calls Update every interval until ctx is cancelled.
func (h *Handler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("tracking: frame interval must be positive, got %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Update(ctx)
		}
	}
}

// Update runs one frame and returns its statistics. Runtime failures never
// abort the frame; they produce an empty snapshot and unbind every slot.
func (h *Handler) Update(ctx context.Context) FrameStats {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()

	start := h.now()
	settings := h.Settings()

	events := h.runtime.PollEvents()
	h.runtime.SetControllerAsTracker(settings.ControllerAsTracker)
	snap, connected, snapErr := h.acquire(ctx)

	clean, rejected := ValidateSnapshot(snap)
	for _, r := range rejected {
		h.logger.Debug("snapshot entry rejected",
			"class", r.Class.String(),
			"index", r.Index,
			"serial", r.Serial,
			"reason", r.Reason)
	}

	var moved []string
	onWrite := func(_ *Slot, dev DeviceInfo) {
		if h.motion.Observe(dev.Serial, dev.Pose.Position) {
			moved = append(moved, dev.Serial)
		}
	}

	h.mu.Lock()
	h.applyEvents(events)
	h.connected = connected
	h.frame++

	stats := newFrameStats(h.frame, start)
	stats.Connected = connected
	stats.Rejected = len(rejected)
	if snapErr != nil {
		stats.SnapshotError = snapErr.Error()
	}

	h.extractCamera(clean, settings.CameraControllerSerial, onWrite)
	if h.cameraClass != nil {
		c := *h.cameraClass
		stats.CameraControllerClass = &c
	}

	for _, c := range AllClasses {
		res := h.groups[c].Reconcile(clean[c], h.mode, onWrite)
		stats.Seen[c] = res.Seen
		stats.Bound[c] = res.Bound
		stats.Dropped[c] = res.Dropped
		if res.Dropped > 0 {
			h.logger.Debug("devices exceed slot capacity",
				"class", c.String(),
				"seen", res.Seen,
				"capacity", h.groups[c].Capacity(),
				"dropped", res.Dropped)
		}
	}

	if settings.FlattenBaseStations {
		for _, s := range h.groups[ClassBaseStation].slots {
			if s.Bound() {
				s.pose = BaseStationPose(s.pose, true)
			}
		}
	}

	rebased := h.motion.drainRebased()
	stats.Moved = moved
	stats.Duration = h.now().Sub(start)
	h.last = stats
	bound := h.boundLocked()
	h.mu.Unlock()

	h.saveBaselines(ctx, rebased)

	for _, serial := range moved {
		h.feed.publish(serial)
	}

	h.observersMu.RLock()
	observers := h.observers
	h.observersMu.RUnlock()
	for _, o := range observers {
		o.ObserveFrame(stats, bound)
	}

	return stats
}

// acquire returns the frame snapshot. A disconnected runtime, an error or a
// timeout all yield an empty snapshot.
func (h *Handler) acquire(ctx context.Context) (Snapshot, bool, error) {
	if !h.runtime.IsConnected() {
		return EmptySnapshot(), false, nil
	}

	sctx, cancel := context.WithTimeout(ctx, h.snapshotTimeout)
	defer cancel()

	type result struct {
		snap Snapshot
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		snap, err := h.runtime.Snapshot(sctx)
		ch <- result{snap: snap, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			h.logger.Debug("snapshot acquisition failed", "error", r.err)
			return EmptySnapshot(), true, r.err
		}
		if r.snap == nil {
			return EmptySnapshot(), true, nil
		}
		return r.snap, true, nil
	case <-sctx.Done():
		err := sctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("snapshot timed out after %v: %w", h.snapshotTimeout, err)
		}
		h.logger.Debug("snapshot acquisition failed", "error", err)
		return EmptySnapshot(), true, err
	}
}

func (h *Handler) applyEvents(events []RuntimeEvent) {
	for _, ev := range events {
		switch ev.Kind {
		case RuntimeConnected:
			h.logger.Info("tracking runtime connected")
		case RuntimeDisconnected:
			h.logger.Warn("tracking runtime disconnected")
		default:
			h.logger.Debug("unknown runtime event", "kind", ev.Kind.String())
		}
	}
}

// extractCamera must be called with h.mu held.
func (h *Handler) extractCamera(s Snapshot, serial string, onWrite WriteFunc) {
	h.cameraClass = nil
	slot := h.camera.slots[0]

	dev, class, ok := ExtractCameraController(s, serial)
	if !ok {
		slot.unbind()
		return
	}

	h.cameraClass = &class
	slot.class = class
	h.camera.writeSlot(slot, dev, onWrite)
}

func (h *Handler) saveBaselines(ctx context.Context, rebased []Baseline) {
	if h.baselines == nil || len(rebased) == 0 {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), baselineSaveTimeout)
	defer cancel()
	if err := h.baselines.SaveBaselines(sctx, rebased); err != nil {
		h.logger.Warn("failed to persist motion baselines", "count", len(rebased), "error", err)
	}
}

// boundLocked returns every bound slot, camera controller first.
// h.mu must be held.
func (h *Handler) boundLocked() []SlotHandle {
	var out []SlotHandle
	if s := h.camera.slots[0]; s.Bound() {
		out = append(out, s.Handle())
	}
	for _, c := range AllClasses {
		out = append(out, h.groups[c].Bound()...)
	}
	return out
}

// FindSlotByName returns the slot whose name (the serial last written to
// it) matches. The camera-controller and HMD slots are matched whether or
// not they are bound this frame; controllers, trackers and base stations
// only while bound. Search order is camera controller, HMD, controllers,
// trackers, base stations.
func (h *Handler) FindSlotByName(name string) (SlotHandle, bool) {
	if name == "" {
		return SlotHandle{}, false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if s := h.camera.slots[0]; s.name == name {
		return s.Handle(), true
	}
	if s := h.hmd.slots[0]; s.name == name {
		return s.Handle(), true
	}
	for _, c := range []DeviceClass{ClassController, ClassGenericTracker, ClassBaseStation} {
		if s, ok := h.groups[c].findBound(name); ok {
			return s.Handle(), true
		}
	}
	return SlotHandle{}, false
}

// Controllers returns the bound controller slots in slot order.
func (h *Handler) Controllers() []SlotHandle { return h.boundOf(ClassController) }

// Trackers returns the bound generic-tracker slots in slot order.
func (h *Handler) Trackers() []SlotHandle { return h.boundOf(ClassGenericTracker) }

// BaseStations returns the bound base-station slots in slot order.
func (h *Handler) BaseStations() []SlotHandle { return h.boundOf(ClassBaseStation) }

func (h *Handler) boundOf(c DeviceClass) []SlotHandle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.groups[c].Bound()
}

// HMD returns the HMD slot.
func (h *Handler) HMD() SlotHandle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hmd.slots[0].Handle()
}

// CameraController returns the camera-controller slot and its binding.
func (h *Handler) CameraController() (SlotHandle, CameraControllerBinding) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	binding := CameraControllerBinding{ConfiguredSerial: h.settings.CameraControllerSerial}
	if h.cameraClass != nil {
		c := *h.cameraClass
		binding.BoundClass = &c
	}
	return h.camera.slots[0].Handle(), binding
}

// Slots returns every slot, bound or not: camera controller, HMD, then
// controllers, trackers and base stations.
func (h *Handler) Slots() []SlotHandle {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []SlotHandle{h.camera.slots[0].Handle(), h.hmd.slots[0].Handle()}
	for _, c := range []DeviceClass{ClassController, ClassGenericTracker, ClassBaseStation} {
		out = append(out, h.groups[c].All()...)
	}
	return out
}

// Bound returns every bound slot, camera controller first.
func (h *Handler) Bound() []SlotHandle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.boundLocked()
}

// LastStats returns the statistics of the most recent frame. The maps in
// the result are shared and must not be modified.
func (h *Handler) LastStats() FrameStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Connected reports whether the runtime was connected in the last frame.
func (h *Handler) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// Capacity returns the configured slot capacities.
func (h *Handler) Capacity() Capacity {
	return Capacity{
		Controllers:  h.groups[ClassController].Capacity(),
		Trackers:     h.groups[ClassGenericTracker].Capacity(),
		BaseStations: h.groups[ClassBaseStation].Capacity(),
	}
}

// Mode returns the binding mode.
func (h *Handler) Mode() BindingMode { return h.mode }

// MotionBaseline returns the recorded motion baseline for serial.
func (h *Handler) MotionBaseline(serial string) (Baseline, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.motion.Baseline(serial)
}
