package shared

import (
	"cmp"
	"slices"
	"sync"
)

// Event is a spike delivered to one site of a point mechanism.
type Event struct {
	MechanismID uint32  `json:"mechanism_id"`
	Index       int32   `json:"index"`
	Time        float64 `json:"time"`
	Weight      float64 `json:"weight"`
}

// EventStream stages deliverable events per integration domain. Mechanism
// kernels read the events marked for the current step through their
// parameter pack.
type EventStream struct {
	mu     sync.Mutex
	n      int
	staged [][]Event
	marked []int
}

func NewEventStream(nIntdom int) *EventStream {
	return &EventStream{
		n:      nIntdom,
		staged: make([][]Event, nIntdom),
		marked: make([]int, nIntdom),
	}
}

// Init replaces the staged events of integration domain d, ordered by time.
func (s *EventStream) Init(d int, events []Event) {
	evs := slices.Clone(events)
	slices.SortStableFunc(evs, func(a, b Event) int { return cmp.Compare(a.Time, b.Time) })
	s.mu.Lock()
	s.staged[d] = evs
	s.marked[d] = 0
	s.mu.Unlock()
}

// MarkUntil marks every staged event of domain d with time before t.
func (s *EventStream) MarkUntil(d int, t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.staged[d]
	i := s.marked[d]
	for i < len(evs) && evs[i].Time < t {
		i++
	}
	s.marked[d] = i
}

// Marked returns the marked events of domain d addressed to mechanism id.
func (s *EventStream) Marked(d int, id uint32) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.staged[d][:s.marked[d]] {
		if ev.MechanismID == id {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of staged events across domains.
func (s *EventStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, evs := range s.staged {
		n += len(evs)
	}
	return n
}

// Clear drops every staged event.
func (s *EventStream) Clear() {
	s.mu.Lock()
	for d := range s.staged {
		s.staged[d] = nil
		s.marked[d] = 0
	}
	s.mu.Unlock()
}
