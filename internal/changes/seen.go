package changes

// Seen tracks changelists already delivered downstream, by sequence number.
type Seen struct {
	numbers map[int64]struct{}
}

func NewSeen() *Seen {
	return &Seen{numbers: map[int64]struct{}{}}
}

// Add records cl and reports whether it had not been seen before.
func (s *Seen) Add(cl *ChangeList) bool {
	if _, ok := s.numbers[cl.Number]; ok {
		return false
	}
	s.numbers[cl.Number] = struct{}{}
	return true
}

func (s *Seen) Contains(cl *ChangeList) bool {
	_, ok := s.numbers[cl.Number]
	return ok
}

func (s *Seen) Len() int {
	return len(s.numbers)
}
