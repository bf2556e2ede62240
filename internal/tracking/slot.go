package tracking

import "fmt"

// Slot is a pre-allocated scene destination for one device.
//
// A slot keeps its last written pose and name after it is unbound; only the
// bound serial is cleared.
type Slot struct {
	class   DeviceClass
	index   int
	label   string
	name    string
	serial  string
	pose    Pose
	written bool
}

func newSlot(class DeviceClass, index int, label string) *Slot {
	return &Slot{
		class: class,
		index: index,
		label: label,
		name:  label,
		pose:  Pose{Rotation: IdentityRotation},
	}
}

// Bound reports whether a device currently drives the slot.
func (s *Slot) Bound() bool { return s.serial != "" }

func (s *Slot) unbind() { s.serial = "" }

// write stores the device pose and renames the slot after the device.
func (s *Slot) write(dev DeviceInfo) {
	s.serial = dev.Serial
	s.name = dev.Serial
	s.pose = dev.Pose
	s.written = true
}

// Handle returns a read-only copy of the slot state.
func (s *Slot) Handle() SlotHandle {
	return SlotHandle{
		Label:   s.label,
		Class:   s.class,
		Index:   s.index,
		Name:    s.name,
		Serial:  s.serial,
		Bound:   s.Bound(),
		Written: s.written,
		Pose:    s.pose,
	}
}

// SlotHandle is the caller-facing view of a slot at the end of a frame.
type SlotHandle struct {
	// Label is the fixed slot identity, e.g. "controller_1".
	Label string `json:"label"`

	Class DeviceClass `json:"class"`
	Index int         `json:"index"`

	// Name is the serial of the device last written to the slot, or the
	// label if nothing has been written yet.
	Name string `json:"name"`

	// Serial is the currently bound serial; empty when unbound.
	Serial string `json:"serial,omitempty"`

	Bound   bool `json:"bound"`
	Written bool `json:"written"`
	Pose    Pose `json:"pose"`
}

// SlotGroup is the ordered set of slots for one device class.
type SlotGroup struct {
	class DeviceClass
	slots []*Slot
}

// NewSlotGroup allocates capacity slots labelled "<prefix>_<index>".
func NewSlotGroup(class DeviceClass, prefix string, capacity int) (*SlotGroup, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: %s capacity %d", ErrInvalidCapacity, class, capacity)
	}
	g := &SlotGroup{class: class, slots: make([]*Slot, capacity)}
	for i := range g.slots {
		g.slots[i] = newSlot(class, i, fmt.Sprintf("%s_%d", prefix, i))
	}
	return g, nil
}

// newSingleSlotGroup allocates one slot whose label has no index suffix.
func newSingleSlotGroup(class DeviceClass, label string) *SlotGroup {
	return &SlotGroup{class: class, slots: []*Slot{newSlot(class, 0, label)}}
}

// Class returns the device class served by the group.
func (g *SlotGroup) Class() DeviceClass { return g.class }

// Capacity returns the number of slots.
func (g *SlotGroup) Capacity() int { return len(g.slots) }

// BoundCount returns the number of bound slots.
func (g *SlotGroup) BoundCount() int {
	n := 0
	for _, s := range g.slots {
		if s.Bound() {
			n++
		}
	}
	return n
}

// Bound returns handles for the bound slots in slot index order.
func (g *SlotGroup) Bound() []SlotHandle {
	out := make([]SlotHandle, 0, len(g.slots))
	for _, s := range g.slots {
		if s.Bound() {
			out = append(out, s.Handle())
		}
	}
	return out
}

// All returns handles for every slot in index order.
func (g *SlotGroup) All() []SlotHandle {
	out := make([]SlotHandle, len(g.slots))
	for i, s := range g.slots {
		out[i] = s.Handle()
	}
	return out
}

// findBound returns the bound slot whose name matches.
func (g *SlotGroup) findBound(name string) (*Slot, bool) {
	for _, s := range g.slots {
		if s.Bound() && s.name == name {
			return s, true
		}
	}
	return nil, false
}

func (g *SlotGroup) unbindAll() {
	for _, s := range g.slots {
		s.unbind()
	}
}
