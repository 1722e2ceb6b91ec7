package playback

import (
	"context"
	"sync"

	"radiostream/internal/domain"
)

// SlotStore holds the prepared slots keyed by schedule, plus the cancel
// functions of in-flight preparations so an admin action can abort them.
type SlotStore struct {
	mu      sync.Mutex
	slots   map[domain.ScheduleID]*domain.PreparedSlot
	cancels map[domain.ScheduleID]context.CancelFunc
}

func NewSlotStore() *SlotStore {
	return &SlotStore{
		slots:   make(map[domain.ScheduleID]*domain.PreparedSlot),
		cancels: make(map[domain.ScheduleID]context.CancelFunc),
	}
}

// BeginPrepare derives a cancellable context for a preparation, replacing
// and cancelling any preparation already in flight for the schedule.
func (s *SlotStore) BeginPrepare(ctx context.Context, id domain.ScheduleID) (context.Context, context.CancelFunc) {
	prepCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if old, ok := s.cancels[id]; ok {
		old()
	}
	s.cancels[id] = cancel
	s.mu.Unlock()
	return prepCtx, cancel
}

// EndPrepare drops the cancel registration once a preparation finishes.
func (s *SlotStore) EndPrepare(id domain.ScheduleID) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

func (s *SlotStore) Put(id domain.ScheduleID, slot *domain.PreparedSlot) {
	s.mu.Lock()
	s.slots[id] = slot
	s.mu.Unlock()
}

// Take removes and returns the slot for a schedule.
func (s *SlotStore) Take(id domain.ScheduleID) (*domain.PreparedSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if ok {
		delete(s.slots, id)
	}
	return slot, ok
}

// TakeAny removes and returns an arbitrary slot. With a single station
// there is normally at most one.
func (s *SlotStore) TakeAny() (domain.ScheduleID, *domain.PreparedSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, slot := range s.slots {
		delete(s.slots, id)
		return id, slot, true
	}
	return "", nil, false
}

// Peek returns an arbitrary slot without consuming it, for connection
// snapshots.
func (s *SlotStore) Peek() (*domain.PreparedSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		return slot, true
	}
	return nil, false
}

// Cancel aborts any in-flight preparation for the schedule and discards
// its slot.
func (s *SlotStore) Cancel(id domain.ScheduleID) {
	s.mu.Lock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	delete(s.slots, id)
	s.mu.Unlock()
}

// CancelAll aborts every in-flight preparation and discards all slots.
func (s *SlotStore) CancelAll() {
	s.mu.Lock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	for id := range s.slots {
		delete(s.slots, id)
	}
	s.mu.Unlock()
}
