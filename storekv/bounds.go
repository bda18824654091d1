package storekv

import "bytes"

// Bounds configures a RawCursor's scan range. Start or End may be nil only
// when its corresponding inclusive flag is true (an open-ended bound);
// a nil bound with inclusive=false is a configuration error checked by
// NewRawCursor.
type Bounds struct {
	Start          []byte
	InclusiveStart bool
	End            []byte
	InclusiveEnd   bool
	Reverse        bool
	// MaxPrefix caps how many leading bytes of the computed Start/End
	// common prefix are cached for the cheap per-move prefix check. Zero
	// means uncapped.
	MaxPrefix int
}

func (b Bounds) valid() error {
	if b.Start == nil && !b.InclusiveStart {
		return errBound("start bound is nil but not inclusive")
	}
	if b.End == nil && !b.InclusiveEnd {
		return errBound("end bound is nil but not inclusive")
	}
	return nil
}

// commonPrefix returns the longest shared byte prefix of Start and End,
// capped at MaxPrefix. A nil bound contributes no constraint (an
// open-ended side has no prefix to share), so the prefix is empty unless
// both sides are set.
func (b Bounds) commonPrefix() []byte {
	if b.Start == nil || b.End == nil {
		return nil
	}
	n := len(b.Start)
	if len(b.End) < n {
		n = len(b.End)
	}
	i := 0
	for i < n && b.Start[i] == b.End[i] {
		i++
	}
	if b.MaxPrefix > 0 && i > b.MaxPrefix {
		i = b.MaxPrefix
	}
	return b.Start[:i]
}

// withinBounds reports whether key satisfies the start and end bounds
// (inclusive flags honoured).
func (b Bounds) withinBounds(key []byte) bool {
	if b.Start != nil {
		c := bytes.Compare(key, b.Start)
		if c < 0 || (c == 0 && !b.InclusiveStart) {
			return false
		}
	}
	if b.End != nil {
		c := bytes.Compare(key, b.End)
		if c > 0 || (c == 0 && !b.InclusiveEnd) {
			return false
		}
	}
	return true
}
