// Package normal implements the DNF/CNF normal-form conversions and the
// group reducer (absorption + left-normalisation) over the filter algebra
// in package filter. It never constructs filter nodes directly; every
// transform goes through filter's exported builders (And, Or, Not,
// NewProperty, NewExists) so the result is always canonical.
package normal

// Stats accumulates diagnostic counters for one normalization call,
// grounded in cue/stats's approach of reporting how much work a
// tree-walking pass performed rather than just its result.
type Stats struct {
	Distributions      int // And-over-Or (or Or-over-And) distribution steps
	AbsorptionsChecked  int // candidate (a, b) pairs examined within a group
	AbsorptionsApplied  int // members actually removed as absorbed
}

func (s *Stats) merge(o Stats) {
	s.Distributions += o.Distributions
	s.AbsorptionsChecked += o.AbsorptionsChecked
	s.AbsorptionsApplied += o.AbsorptionsApplied
}
