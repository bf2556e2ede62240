package openvr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tracker-core/internal/tracking"
)

const (
	// DefaultStaleAfter is how old the newest snapshot may be before the
	// runtime is treated as not delivering.
	DefaultStaleAfter = 500 * time.Millisecond

	snapshotQoS = 0
	statusQoS   = 1
	configQoS   = 1
)

// MQTTClient is the subset of *mqtt.Client the runtime needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger is the logging surface used by the runtime.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Runtime.
type Options struct {
	Client MQTTClient

	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration

	Logger Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Runtime implements tracking.Runtime on top of the MQTT topics published
// by the headset-side bridge.
//
// Thread Safety: All methods are safe for concurrent use.
type Runtime struct {
	client     MQTTClient
	staleAfter time.Duration
	now        func() time.Time
	logger     Logger

	mu           sync.Mutex
	latest       tracking.Snapshot
	latestFrame  uint64
	receivedAt   time.Time
	arrived      chan struct{} // closed and replaced on every snapshot
	bridgeUp     bool
	runtimeName  string
	events       []tracking.RuntimeEvent
	lastUp       bool
	unknownSeen  map[string]bool
	published    bool
	publishedCAT bool
	startedAt    time.Time
	lastMessage  time.Time // any decodable status or snapshot
}

var _ tracking.Runtime = (*Runtime)(nil)

// New creates a Runtime. Call Start to subscribe.
func New(opts Options) (*Runtime, error) {
	if opts.Client == nil {
		return nil, ErrNilClient
	}
	r := &Runtime{
		client:      opts.Client,
		staleAfter:  opts.StaleAfter,
		now:         opts.Now,
		logger:      opts.Logger,
		arrived:     make(chan struct{}),
		unknownSeen: make(map[string]bool),
	}
	if r.staleAfter <= 0 {
		r.staleAfter = DefaultStaleAfter
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r, nil
}

// Start subscribes to the status and snapshot topics.
func (r *Runtime) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topics := mqtt.Topics{}
	if err := r.client.Subscribe(topics.RuntimeStatus(), statusQoS, r.handleStatus); err != nil {
		return fmt.Errorf("subscribing to runtime status: %w", err)
	}
	if err := r.client.Subscribe(topics.RuntimeSnapshot(), snapshotQoS, r.handleSnapshot); err != nil {
		return fmt.Errorf("subscribing to runtime snapshots: %w", err)
	}
	r.mu.Lock()
	r.startedAt = r.now()
	r.mu.Unlock()

	r.logger.Info("openvr runtime bridge subscribed",
		"status_topic", topics.RuntimeStatus(),
		"snapshot_topic", topics.RuntimeSnapshot(),
	)
	return nil
}

// IsConnected reports whether the broker link is up, the bridge reports
// the runtime as connected and snapshots are fresh.
func (r *Runtime) IsConnected() bool {
	if !r.client.IsConnected() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bridgeUp && !r.staleLocked()
}

// BridgeAlive reports whether the bridge process is still publishing. Any
// status or snapshot received within the window counts, so a bridge that
// reports the VR runtime as disconnected is still alive. Silence is measured
// from Start until the first message arrives. A broker outage is not blamed
// on the bridge.
func (r *Runtime) BridgeAlive(within time.Duration) error {
	if !r.client.IsConnected() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	last := r.lastMessage
	if last.IsZero() {
		last = r.startedAt
	}
	if silent := r.now().Sub(last); silent > within {
		return fmt.Errorf("%w: nothing received for %v", ErrBridgeSilent, silent)
	}
	return nil
}

// PollEvents returns connection transitions observed since the last call.
// Transitions are derived from IsConnected, so broker loss and stale
// snapshots are reported the same way as a bridge status change.
func (r *Runtime) PollEvents() []tracking.RuntimeEvent {
	up := r.IsConnected()

	r.mu.Lock()
	defer r.mu.Unlock()

	if up != r.lastUp {
		kind := tracking.RuntimeDisconnected
		if up {
			kind = tracking.RuntimeConnected
		}
		r.events = append(r.events, tracking.RuntimeEvent{Kind: kind, At: r.now()})
		r.lastUp = up
	}

	events := r.events
	r.events = nil
	return events
}

// Snapshot returns the newest snapshot. When none has arrived yet it waits
// for the first one until ctx is done.
func (r *Runtime) Snapshot(ctx context.Context) (tracking.Snapshot, error) {
	r.mu.Lock()
	if r.latest == nil {
		wait := r.arrived
		r.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, ctx.Err())
		}
		r.mu.Lock()
	}
	defer r.mu.Unlock()

	if r.staleLocked() {
		return nil, fmt.Errorf("%w: frame %d received %v ago", ErrStaleSnapshot, r.latestFrame, r.now().Sub(r.receivedAt))
	}
	return r.latest.Clone(), nil
}

// SetControllerAsTracker publishes the toggle to the bridge when it changes.
func (r *Runtime) SetControllerAsTracker(enabled bool) {
	r.mu.Lock()
	if r.published && r.publishedCAT == enabled {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	payload, err := json.Marshal(ConfigMessage{ControllerAsTracker: enabled, Timestamp: r.now().UTC()})
	if err != nil {
		r.logger.Error("encoding runtime config", "error", err)
		return
	}
	if err := r.client.Publish(mqtt.Topics{}.RuntimeConfig(), payload, configQoS, true); err != nil {
		r.logger.Warn("publishing runtime config failed", "error", err)
		return
	}

	r.mu.Lock()
	r.published = true
	r.publishedCAT = enabled
	r.mu.Unlock()

	r.logger.Info("runtime config published", "controller_as_tracker", enabled)
}

// RuntimeName returns the runtime description from the last status message.
func (r *Runtime) RuntimeName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runtimeName
}

func (r *Runtime) handleSnapshot(_ string, payload []byte) error {
	var msg SnapshotMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: snapshot: %w", ErrInvalidMessage, err)
	}

	snap, unknown := msg.toSnapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastMessage = r.now()
	if r.latest != nil && msg.Frame != 0 && msg.Frame < r.latestFrame {
		r.logger.Debug("out-of-order snapshot ignored", "frame", msg.Frame, "latest", r.latestFrame)
		return nil
	}

	for _, name := range unknown {
		if !r.unknownSeen[name] {
			r.unknownSeen[name] = true
			r.logger.Warn("snapshot contains unknown device class", "class", name)
		}
	}

	r.latest = snap
	r.latestFrame = msg.Frame
	r.receivedAt = r.now()
	close(r.arrived)
	r.arrived = make(chan struct{})

	return nil
}

func (r *Runtime) handleStatus(_ string, payload []byte) error {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: status: %w", ErrInvalidMessage, err)
	}

	up := msg.Status == StatusConnected

	r.mu.Lock()
	r.lastMessage = r.now()
	changed := r.bridgeUp != up
	r.bridgeUp = up
	r.runtimeName = msg.Runtime
	r.mu.Unlock()

	if changed {
		r.logger.Info("runtime bridge status changed", "status", msg.Status, "runtime", msg.Runtime)
	}
	return nil
}

func (r *Runtime) staleLocked() bool {
	if r.latest == nil {
		return false
	}
	return r.now().Sub(r.receivedAt) > r.staleAfter
}
