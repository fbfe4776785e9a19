package pool

// ResourceStats is the point-in-time view of one resource.
type ResourceStats struct {
	Used    int `json:"used"`
	Max     int `json:"max"`
	Waiting int `json:"waiting"`
}

// Stats is the point-in-time view of the whole pool. TotalSlots is the
// global ceiling when one is configured, otherwise the sum of the limits of
// every resource seen so far.
type Stats struct {
	UsedSlots      int                      `json:"used_slots"`
	AvailableSlots int                      `json:"available_slots"`
	TotalSlots     int                      `json:"total_slots"`
	PerResource    map[string]ResourceStats `json:"per_resource"`
}

// Stats returns a consistent snapshot taken under the pool lock.
func (p *SlotPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		UsedSlots:   p.total,
		PerResource: make(map[string]ResourceStats, len(p.resources)),
	}

	sumMax := 0
	for name, rs := range p.resources {
		s.PerResource[name] = ResourceStats{
			Used:    rs.used,
			Max:     rs.max,
			Waiting: len(rs.waiters),
		}
		sumMax += rs.max
	}

	if p.globalSlots > 0 {
		s.TotalSlots = p.globalSlots
	} else {
		s.TotalSlots = sumMax
	}
	s.AvailableSlots = s.TotalSlots - s.UsedSlots

	return s
}
