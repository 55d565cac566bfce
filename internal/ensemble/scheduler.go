package ensemble

// RebalanceScheduler decides which epochs generate orders. With period p it answers
// false p times and then true once, so triggers are p+1 calls apart.
type RebalanceScheduler struct {
	period  int
	counter int
}

// NewRebalanceScheduler creates a scheduler. Negative periods are treated as 0.
func NewRebalanceScheduler(period int) *RebalanceScheduler {
	if period < 0 {
		period = 0
	}
	return &RebalanceScheduler{period: period}
}

// ShouldTrigger advances the counter and reports whether this epoch rebalances.
func (s *RebalanceScheduler) ShouldTrigger() bool {
	if s.counter < s.period {
		s.counter++
		return false
	}
	s.counter = 0
	return true
}

// Period returns the configured period.
func (s *RebalanceScheduler) Period() int { return s.period }
