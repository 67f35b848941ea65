package state

import "htnplan/internal/term"

// AddProtection protects p, incrementing its count if it is already
// protected.
func (s *State) AddProtection(p term.Predicate) {
	for _, pr := range s.protections[p.Head] {
		if pr.atom.Equal(p) {
			pr.count++
			s.recordProtection(ChangeProtect, p)
			return
		}
	}
	s.protections[p.Head] = append(s.protections[p.Head], &protection{atom: p, count: 1})
	s.recordProtection(ChangeProtect, p)
}

// DelProtection decrements the protection count of p, dropping it at zero.
// It returns false if p was not protected.
func (s *State) DelProtection(p term.Predicate) bool {
	ps := s.protections[p.Head]
	for i, pr := range ps {
		if !pr.atom.Equal(p) {
			continue
		}
		pr.count--
		if pr.count == 0 {
			s.protections[p.Head] = append(ps[:i], ps[i+1:]...)
		}
		s.recordProtection(ChangeUnprotect, p)
		return true
	}
	return false
}

// IsProtected reports whether p currently has a positive protection count.
func (s *State) IsProtected(p term.Predicate) bool {
	return s.ProtectionCount(p) > 0
}

// ProtectionCount returns the protection count of p.
func (s *State) ProtectionCount(p term.Predicate) int {
	for _, pr := range s.protections[p.Head] {
		if pr.atom.Equal(p) {
			return pr.count
		}
	}
	return 0
}

// Protections lists the protected atoms with their counts.
func (s *State) Protections() map[string]int {
	out := make(map[string]int)
	for _, ps := range s.protections {
		for _, pr := range ps {
			out[pr.atom.Key()] = pr.count
		}
	}
	return out
}
