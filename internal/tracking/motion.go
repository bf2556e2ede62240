package tracking

import (
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMotionThreshold is the distance, in tracking-space units (metres),
// a device must travel from its baseline before it counts as moved.
const DefaultMotionThreshold = 0.1

// Baseline is the last recorded reference position of a device.
type Baseline struct {
	Serial    string
	Position  r3.Vec
	UpdatedAt time.Time
}

// MotionDetector reports devices that moved further than a threshold from
// their last recorded position.
//
// The baseline is only replaced when a move is reported, so slow drift
// accumulates until it crosses the threshold. History holds one entry per
// serial ever observed and is never pruned.
//
// MotionDetector is not safe for concurrent use; the Handler serialises
// access under its frame lock.
type MotionDetector struct {
	threshold float64
	history   map[string]Baseline
	now       func() time.Time

	// rebased collects baseline changes since the last drain.
	rebased []Baseline
}

// NewMotionDetector creates a detector. A non-positive threshold selects
// DefaultMotionThreshold.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{
		threshold: threshold,
		history:   make(map[string]Baseline),
		now:       time.Now,
	}
}

// Threshold returns the configured distance threshold.
func (d *MotionDetector) Threshold() float64 { return d.threshold }

// Observe records pos for serial and reports whether the device moved.
//
// The first observation of a serial only records the baseline. Later
// observations compare against the baseline: a distance strictly greater
// than the threshold reports true and rebases; anything else leaves the
// baseline untouched.
func (d *MotionDetector) Observe(serial string, pos r3.Vec) bool {
	base, ok := d.history[serial]
	if !ok {
		d.rebase(serial, pos)
		return false
	}

	if Distance(pos, base.Position) > d.threshold {
		d.rebase(serial, pos)
		return true
	}
	return false
}

// Baseline returns the recorded baseline for serial.
func (d *MotionDetector) Baseline(serial string) (Baseline, bool) {
	b, ok := d.history[serial]
	return b, ok
}

// Len returns the number of serials with a recorded baseline.
func (d *MotionDetector) Len() int { return len(d.history) }

// Restore seeds baselines, typically from persistent storage at startup.
// Existing entries for the same serial are replaced. A zero UpdatedAt is
// stamped with the current time.
func (d *MotionDetector) Restore(baselines []Baseline) {
	for _, b := range baselines {
		if b.Serial == "" {
			continue
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = d.now().UTC()
		}
		d.history[b.Serial] = b
	}
}

// drainRebased returns and clears the baseline changes since the last call.
func (d *MotionDetector) drainRebased() []Baseline {
	out := d.rebased
	d.rebased = nil
	return out
}

func (d *MotionDetector) rebase(serial string, pos r3.Vec) {
	b := Baseline{Serial: serial, Position: pos, UpdatedAt: d.now().UTC()}
	d.history[serial] = b
	d.rebased = append(d.rebased, b)
}

// Distance returns the Euclidean distance between two positions.
func Distance(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// MovedFunc receives the serial of a device that moved.
type MovedFunc func(serial string)

// movedFeed fans moved notifications out to subscribers.
type movedFeed struct {
	mu   sync.RWMutex
	next int
	subs map[int]MovedFunc
}

func newMovedFeed() *movedFeed {
	return &movedFeed{subs: make(map[int]MovedFunc)}
}

// subscribe registers fn and returns an idempotent unsubscribe function.
func (f *movedFeed) subscribe(fn MovedFunc) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// publish calls every subscriber in registration order. Subscribers may
// unsubscribe from inside their callback.
func (f *movedFeed) publish(serial string) {
	f.mu.RLock()
	ids := make([]int, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	f.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		f.mu.RLock()
		fn, ok := f.subs[id]
		f.mu.RUnlock()
		if ok {
			fn(serial)
		}
	}
}

func (f *movedFeed) len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
