package tracking

// Rejection records a snapshot entry dropped by ValidateSnapshot.
type Rejection struct {
	Class  DeviceClass
	Index  int
	Serial string
	Reason error
}

// ValidateSnapshot returns a cleaned copy of s in which every serial is
// non-empty and unique across the whole snapshot. Classes are scanned in
// AllClasses order and the first occurrence of a serial wins. Entries under
// an unknown class key are rejected with ErrUnknownClass.
//
// The result always contains all four class buckets and never aliases s.
func ValidateSnapshot(s Snapshot) (Snapshot, []Rejection) {
	out := EmptySnapshot()
	var rejected []Rejection

	seen := make(map[string]struct{}, s.Count())
	for _, c := range AllClasses {
		for i, dev := range s[c] {
			if dev.Serial == "" {
				rejected = append(rejected, Rejection{Class: c, Index: i, Reason: ErrEmptySerial})
				continue
			}
			if _, dup := seen[dev.Serial]; dup {
				rejected = append(rejected, Rejection{Class: c, Index: i, Serial: dev.Serial, Reason: ErrDuplicateSerial})
				continue
			}
			seen[dev.Serial] = struct{}{}
			out[c] = append(out[c], dev)
		}
	}

	for c, devs := range s {
		if c.Valid() {
			continue
		}
		for i, dev := range devs {
			rejected = append(rejected, Rejection{Class: c, Index: i, Serial: dev.Serial, Reason: ErrUnknownClass})
		}
	}

	return out, rejected
}
