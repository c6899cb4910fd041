package logic

// Scale is the direct readout mode: the displayed weight is the raw pressure
// minus a zero offset, never below 0.
type Scale struct {
	raw      float64
	offset   float64
	weight   float64
	touching bool
}

// Observe feeds the primary sample's pressure, or touching=false when the
// batch carries no contact. Losing contact clears the offset.
func (s *Scale) Observe(pressure float64, touching bool) {
	if !touching {
		s.touching = false
		s.raw = 0
		s.weight = 0
		s.offset = 0
		return
	}
	s.touching = true
	s.raw = pressure
	s.weight = s.raw - s.offset
	if s.weight < 0 {
		s.weight = 0
	}
}

// Zero tares the scale at the current raw reading. It is a no-op without
// contact and reports whether the offset was set.
func (s *Scale) Zero() bool {
	if !s.touching {
		return false
	}
	s.offset = s.raw
	s.weight = 0
	return true
}

// Reset returns the scale to no contact.
func (s *Scale) Reset() {
	*s = Scale{}
}

func (s *Scale) Weight() float64 { return s.weight }
func (s *Scale) Offset() float64 { return s.offset }
func (s *Scale) Raw() float64    { return s.raw }
func (s *Scale) Touching() bool  { return s.touching }
