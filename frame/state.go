package frame

import "sync"

// Phase is the set of modalities received since the last emitted pair.
type Phase uint8

const (
	None      Phase = 0
	ColorOnly Phase = 1 << Color
	DepthOnly Phase = 1 << Depth
	Both            = ColorOnly | DepthOnly
)

func (p Phase) String() string {
	switch p {
	case None:
		return "none"
	case ColorOnly:
		return "color-only"
	case DepthOnly:
		return "depth-only"
	case Both:
		return "both"
	}
	return "invalid"
}

// State pairs color and depth arrivals. The zero value is ready to use.
type State struct {
	mu    sync.Mutex
	phase Phase
}

// Update records the arrival of m and reports whether a complete pair is
// ready. A ready pair resets the state to None before Update returns, so each
// pair is reported exactly once.
//
// While interested is false the arrival is still recorded but nothing is
// reported; the pair fires on the first update made with interest.
func (s *State) Update(m Modality, interested bool) (bool, error) {
	bit, err := m.phase()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase |= bit
	if s.phase != Both || !interested {
		return false, nil
	}

	s.phase = None
	return true, nil
}

func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = None
}

func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}
