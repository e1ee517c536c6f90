package canbus

// Composable FrameFilter constructors. A nil FrameFilter matches everything.

// ByID matches one exact identifier.
func ByID(id uint32) FrameFilter {
	return func(f Frame) bool { return f.ID == id }
}

// ByIDs matches any of the given identifiers.
func ByIDs(ids ...uint32) FrameFilter {
	set := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(f Frame) bool {
		_, ok := set[f.ID]
		return ok
	}
}

// ByRange matches identifiers in [lo, hi]. Bounds given in the wrong order
// are swapped.
func ByRange(lo, hi uint32) FrameFilter {
	if hi < lo {
		lo, hi = hi, lo
	}
	return func(f Frame) bool { return f.ID >= lo && f.ID <= hi }
}

// ByBlock matches the n consecutive standard identifiers starting at base,
// the "base | node" addressing used by CANopen-style protocols.
func ByBlock(base uint32, n uint32) FrameFilter {
	return All(StandardOnly(), ByRange(base, base+n-1))
}

// ByMask matches when (frame.ID & mask) == (id & mask).
func ByMask(id, mask uint32) FrameFilter {
	want := id & mask
	return func(f Frame) bool { return f.ID&mask == want }
}

// StandardOnly matches 11-bit identifiers.
func StandardOnly() FrameFilter {
	return func(f Frame) bool { return !f.Extended }
}

// ExtendedOnly matches 29-bit identifiers.
func ExtendedOnly() FrameFilter {
	return func(f Frame) bool { return f.Extended }
}

// DataOnly matches non-RTR frames.
func DataOnly() FrameFilter {
	return func(f Frame) bool { return !f.RTR }
}

// RTROnly matches remote transmission requests.
func RTROnly() FrameFilter {
	return func(f Frame) bool { return f.RTR }
}

// LenExactly matches frames carrying exactly n data bytes.
func LenExactly(n uint8) FrameFilter {
	return func(f Frame) bool { return f.Len == n }
}

// All matches when every non-nil filter matches.
func All(filters ...FrameFilter) FrameFilter {
	return func(f Frame) bool {
		for _, fl := range filters {
			if fl != nil && !fl(f) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one non-nil filter matches. With no usable
// filters it matches nothing.
func Any(filters ...FrameFilter) FrameFilter {
	return func(f Frame) bool {
		for _, fl := range filters {
			if fl != nil && fl(f) {
				return true
			}
		}
		return false
	}
}

// Not inverts a filter. Not(nil) matches nothing.
func Not(a FrameFilter) FrameFilter {
	if a == nil {
		return func(Frame) bool { return false }
	}
	return func(f Frame) bool { return !a(f) }
}
