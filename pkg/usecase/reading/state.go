package reading

import (
	"context"
	"sync"

	"github.com/m-mizutani/arcana/pkg/model"
)

// State holds the reading session. Only the Controller mutates it; readers
// take snapshots or subscribe.
type State struct {
	// notifyMu serializes mutation and notification so subscribers observe
	// snapshots in mutation order. Subscribers must not mutate State.
	notifyMu sync.Mutex

	mu          sync.Mutex
	snap        model.SessionSnapshot
	cancel      context.CancelFunc
	subscribers map[int]func(model.SessionSnapshot)
	nextSubID   int
}

func NewState() *State {
	return &State{
		subscribers: make(map[int]func(model.SessionSnapshot)),
	}
}

// Snapshot returns a copy of the current session
func (s *State) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySnapshot()
}

// Subscribe registers fn to receive a snapshot after every mutation
func (s *State) Subscribe(fn func(model.SessionSnapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// Clear drops the current reading and any in-flight generation
func (s *State) Clear() {
	s.mutate(func() bool {
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.snap.Generation++
		s.snap.CurrentReading = nil
		s.snap.StreamingText = ""
		s.snap.Error = ""
		s.snap.IsGenerating = false
		return true
	})
}

func (s *State) begin(cancel context.CancelFunc) uint64 {
	var gen uint64
	s.mutate(func() bool {
		if s.cancel != nil {
			s.cancel()
		}
		s.cancel = cancel
		s.snap.Generation++
		s.snap.CurrentReading = nil
		s.snap.StreamingText = ""
		s.snap.Error = ""
		s.snap.IsGenerating = true
		gen = s.snap.Generation
		return true
	})
	return gen
}

func (s *State) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Generation == gen
}

func (s *State) setStreaming(gen uint64, text string) bool {
	return s.mutate(func() bool {
		if s.snap.Generation != gen {
			return false
		}
		s.snap.StreamingText = text
		return true
	})
}

func (s *State) complete(gen uint64, reading *model.Reading) bool {
	return s.mutate(func() bool {
		if s.snap.Generation != gen {
			return false
		}
		s.snap.StreamingText = reading.Interpretation
		s.snap.CurrentReading = cloneReading(reading)
		s.snap.IsGenerating = false
		s.cancel = nil
		return true
	})
}

func (s *State) fail(gen uint64, message string) bool {
	return s.mutate(func() bool {
		if s.snap.Generation != gen {
			return false
		}
		s.snap.Error = message
		s.snap.IsGenerating = false
		s.cancel = nil
		return true
	})
}

func (s *State) mirrorFavorite(id model.ReadingID, favorite bool) {
	s.mutate(func() bool {
		if s.snap.CurrentReading == nil || s.snap.CurrentReading.ID != id {
			return false
		}
		s.snap.CurrentReading.Favorite = favorite
		return true
	})
}

// mutate applies fn under the lock and notifies subscribers when fn reports
// a change
func (s *State) mutate(fn func() bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn()
	var snap model.SessionSnapshot
	var subscribers []func(model.SessionSnapshot)
	if changed {
		snap = s.copySnapshot()
		subscribers = make([]func(model.SessionSnapshot), 0, len(s.subscribers))
		for _, fn := range s.subscribers {
			subscribers = append(subscribers, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(snap)
	}
	return changed
}

func (s *State) copySnapshot() model.SessionSnapshot {
	snap := s.snap
	if snap.CurrentReading != nil {
		snap.CurrentReading = cloneReading(snap.CurrentReading)
	}
	return snap
}

func cloneReading(r *model.Reading) *model.Reading {
	c := *r
	c.Cards = append([]model.ReadingCard(nil), r.Cards...)
	return &c
}
