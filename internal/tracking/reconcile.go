package tracking

import "fmt"

// BindingMode selects how devices are assigned to slots within a class.
type BindingMode int

const (
	// BindingPositional writes runtime index i to slot i. When the device
	// count for the class changes, every slot of the class is unbound first.
	BindingPositional BindingMode = iota

	// BindingStrict keeps a serial on the slot it was first given while the
	// serial stays visible. New serials take the lowest free slot.
	BindingStrict
)

// String returns the configuration name of the mode.
func (m BindingMode) String() string {
	switch m {
	case BindingPositional:
		return "positional"
	case BindingStrict:
		return "strict"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseBindingMode converts "positional" or "strict" into a BindingMode.
// The empty string selects BindingPositional.
func ParseBindingMode(s string) (BindingMode, error) {
	switch s {
	case "", "positional":
		return BindingPositional, nil
	case "strict":
		return BindingStrict, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBindingMode, s)
	}
}

// ReconcileResult summarises one reconciliation of a class.
type ReconcileResult struct {
	Seen    int
	Bound   int
	Dropped int
}

// WriteFunc is called for every slot that receives a device pose.
// It runs after the slot has been updated.
type WriteFunc func(slot *Slot, dev DeviceInfo)

// Reconcile maps devices onto the group's slots. Devices that do not fit
// are dropped and counted; that is never an error.
func (g *SlotGroup) Reconcile(devices []DeviceInfo, mode BindingMode, onWrite WriteFunc) ReconcileResult {
	res := ReconcileResult{Seen: len(devices)}

	if len(devices) == 0 {
		g.unbindAll()
		return res
	}

	switch mode {
	case BindingStrict:
		res.Dropped = g.reconcileStrict(devices, onWrite)
	default:
		res.Dropped = g.reconcilePositional(devices, onWrite)
	}

	res.Bound = g.BoundCount()
	return res
}

func (g *SlotGroup) reconcilePositional(devices []DeviceInfo, onWrite WriteFunc) int {
	if g.BoundCount() != len(devices) {
		g.unbindAll()
	}

	n := min(len(devices), len(g.slots))
	for i := 0; i < n; i++ {
		g.writeSlot(g.slots[i], devices[i], onWrite)
	}
	return len(devices) - n
}

func (g *SlotGroup) reconcileStrict(devices []DeviceInfo, onWrite WriteFunc) int {
	present := make(map[string]struct{}, len(devices))
	for _, dev := range devices {
		present[dev.Serial] = struct{}{}
	}

	held := make(map[string]*Slot, len(g.slots))
	for _, s := range g.slots {
		if !s.Bound() {
			continue
		}
		if _, ok := present[s.serial]; !ok {
			s.unbind()
			continue
		}
		held[s.serial] = s
	}

	dropped := 0
	for _, dev := range devices {
		if s, ok := held[dev.Serial]; ok {
			g.writeSlot(s, dev, onWrite)
			continue
		}
		s := g.lowestFree()
		if s == nil {
			dropped++
			continue
		}
		g.writeSlot(s, dev, onWrite)
		held[dev.Serial] = s
	}
	return dropped
}

func (g *SlotGroup) lowestFree() *Slot {
	for _, s := range g.slots {
		if !s.Bound() {
			return s
		}
	}
	return nil
}

func (g *SlotGroup) writeSlot(s *Slot, dev DeviceInfo, onWrite WriteFunc) {
	s.write(dev)
	if onWrite != nil {
		onWrite(s, dev)
	}
}
