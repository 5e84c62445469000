// Package store holds the engine's published snapshots. The collection loop
// is the single producer; any number of goroutines may read concurrently.
package store

import (
	"sync"
	"time"

	"github.com/srodi/procscope/pkg/types"
)

// UsagePoint is one publish's aggregate usage, retained in a bounded ring
// so graphing consumers can render a rolling window without keeping
// snapshots alive.
type UsagePoint struct {
	Taken       time.Time
	CPUPercent  float64
	MemoryBytes uint64
	Processes   int
}

// Store retains the current and immediately previous snapshot. Publish and
// the read methods only ever hold the lock around the pointer swap, never
// around sampling or building.
type Store struct {
	mu       sync.RWMutex
	current  types.Snapshot
	previous types.Snapshot
	hasCur   bool
	hasPrev  bool

	history []UsagePoint
	histPos int
	histLen int

	subMu   sync.Mutex
	subs    map[int]chan types.Snapshot
	nextSub int
}

// New creates a Store whose usage history keeps historyLen points; zero or
// negative means types.DefaultHistoryLen.
func New(historyLen int) *Store {
	if historyLen <= 0 {
		historyLen = types.DefaultHistoryLen
	}
	return &Store{
		history: make([]UsagePoint, 0, historyLen),
		histLen: historyLen,
		subs:    make(map[int]chan types.Snapshot),
	}
}

// Publish atomically replaces the current snapshot, demotes the old current
// to previous, records a usage point, and notifies subscribers. Sends are
// non-blocking: a subscriber that cannot keep up loses intermediate
// snapshots instead of stalling the collection loop.
func (s *Store) Publish(snap types.Snapshot) {
	point := usagePoint(snap)

	s.mu.Lock()
	if s.hasCur {
		s.previous = s.current
		s.hasPrev = true
	}
	s.current = snap
	s.hasCur = true
	if len(s.history) < s.histLen {
		s.history = append(s.history, point)
	} else {
		s.history[s.histPos] = point
		s.histPos = (s.histPos + 1) % s.histLen
	}
	s.mu.Unlock()

	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	s.subMu.Unlock()
}

// Read returns the current snapshot. ok is false until the first publish.
func (s *Store) Read() (types.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.hasCur
}

// ReadPrevious returns the snapshot published before the current one.
func (s *Store) ReadPrevious() (types.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previous, s.hasPrev
}

// Subscribe registers a push observer. buffer is the channel depth; zero or
// negative means 1. The returned cancel function unregisters the observer
// and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan types.Snapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan types.Snapshot, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; !ok {
			return
		}
		delete(s.subs, id)
		close(ch)
	}
	return ch, cancel
}

// History returns the rolling usage window, oldest first.
func (s *Store) History() []UsagePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UsagePoint, 0, len(s.history))
	if len(s.history) < s.histLen {
		out = append(out, s.history...)
		return out
	}
	out = append(out, s.history[s.histPos:]...)
	out = append(out, s.history[:s.histPos]...)
	return out
}

func usagePoint(snap types.Snapshot) UsagePoint {
	point := UsagePoint{Taken: snap.Taken(), Processes: snap.PIDCount()}
	for _, row := range snap.Rows() {
		point.CPUPercent += row.CPUPercent
		point.MemoryBytes += row.MemoryBytes
	}
	return point
}
