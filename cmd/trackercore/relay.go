package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tracker-core/internal/api"
	"github.com/nerrad567/tracker-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tracker-core/internal/tracking"
)

const relayQueueSize = 256

// MovedEvent is the payload published for every moved notification.
type MovedEvent struct {
	ID        string        `json:"id"`
	Serial    string        `json:"serial"`
	Slot      string        `json:"slot,omitempty"`
	Pose      tracking.Pose `json:"pose"`
	Distance  float64       `json:"distance"`
	Timestamp time.Time     `json:"timestamp"`
}

type jsonPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

type broadcaster interface {
	Broadcast(channel string, payload any)
}

type movedWriter interface {
	WriteMoved(serial string, distance float64, at time.Time)
}

// movedSource is the part of the tracking handler the relay reads.
type movedSource interface {
	Subscribe(fn tracking.MovedFunc) (unsubscribe func())
	AddObserver(o tracking.FrameObserver)
	MotionBaseline(serial string) (tracking.Baseline, bool)
	FindSlotByName(name string) (tracking.SlotHandle, bool)
}

// movedRelay fans moved notifications out to MQTT, WebSocket clients and
// InfluxDB. Notifications are queued so the frame goroutine never waits on
// the broker.
type movedRelay struct {
	source    movedSource
	publisher jsonPublisher
	hub       broadcaster
	influx    movedWriter
	logger    tracking.Logger
	now       func() time.Time

	queue       chan string
	unsubscribe func()

	mu   sync.Mutex
	last map[string]tracking.Baseline
}

func newMovedRelay(source movedSource, logger tracking.Logger) *movedRelay {
	return &movedRelay{
		source: source,
		logger: logger,
		now:    time.Now,
		queue:  make(chan string, relayQueueSize),
		last:   make(map[string]tracking.Baseline),
	}
}

// ObserveFrame records the first baseline of every newly bound device so the
// first move has a reference distance.
func (r *movedRelay) ObserveFrame(_ tracking.FrameStats, bound []tracking.SlotHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range bound {
		if _, ok := r.last[h.Serial]; ok {
			continue
		}
		if b, ok := r.source.MotionBaseline(h.Serial); ok {
			r.last[h.Serial] = b
		}
	}
}

func (r *movedRelay) enqueue(serial string) {
	select {
	case r.queue <- serial:
	default:
		r.logger.Warn("moved relay queue full, event dropped", "serial", serial)
	}
}

// attach registers the relay with the handler. It must be called before the
// frame loop starts so no early notification or bound device is missed.
func (r *movedRelay) attach() {
	r.source.AddObserver(r)
	r.unsubscribe = r.source.Subscribe(r.enqueue)
}

// Run publishes queued events until ctx is cancelled. Events queued between
// attach and Run are delivered once Run starts.
func (r *movedRelay) Run(ctx context.Context) error {
	if r.unsubscribe != nil {
		defer r.unsubscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case serial := <-r.queue:
			r.publish(r.event(serial))
		}
	}
}

func (r *movedRelay) event(serial string) MovedEvent {
	ev := MovedEvent{
		ID:        uuid.NewString(),
		Serial:    serial,
		Timestamp: r.now().UTC(),
	}
	if slot, ok := r.source.FindSlotByName(serial); ok {
		ev.Slot = slot.Label
		ev.Pose = slot.Pose
	}

	current, ok := r.source.MotionBaseline(serial)
	if !ok {
		return ev
	}
	r.mu.Lock()
	if prev, seen := r.last[serial]; seen {
		ev.Distance = tracking.Distance(prev.Position, current.Position)
	}
	r.last[serial] = current
	r.mu.Unlock()

	return ev
}

func (r *movedRelay) publish(ev MovedEvent) {
	if r.publisher != nil {
		if err := r.publisher.PublishJSON(mqtt.Topics{}.TrackerMoved(ev.Serial), ev, false); err != nil {
			r.logger.Warn("publishing moved event failed", "serial", ev.Serial, "error", err)
		}
	}
	if r.hub != nil {
		r.hub.Broadcast(api.ChannelMoved, ev)
	}
	if r.influx != nil {
		r.influx.WriteMoved(ev.Serial, ev.Distance, ev.Timestamp)
	}
	r.logger.Debug("moved event relayed", "serial", ev.Serial, "slot", ev.Slot, "distance", ev.Distance)
}
