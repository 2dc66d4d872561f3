package market

import (
	"sort"
	"sync"
	"time"
)

// registryState holds instruments under a single lock.
type registryState struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
	order       []string

	changes chan StatusChange
}

func newState() *registryState {
	return &registryState{
		instruments: make(map[string]*Instrument),
		changes:     make(chan StatusChange, ChangeBufferSize),
	}
}

func (s *registryState) add(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(symbol)
}

func (s *registryState) addLocked(symbol string) *Instrument {
	if inst, ok := s.instruments[symbol]; ok {
		return inst
	}
	inst := &Instrument{Symbol: symbol, Status: StatusPending}
	s.instruments[symbol] = inst
	s.order = append(s.order, symbol)
	return inst
}

func (s *registryState) symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *registryState) get(symbol string) (Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[symbol]
	if !ok {
		return Instrument{}, false
	}
	return *inst, true
}

// markActive counts a snapshot and reports whether this was the first one
// and the resulting status change, if any.
func (s *registryState) markActive(symbol string, now time.Time) (first bool, change *StatusChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.addLocked(symbol)
	inst.Snapshots++
	if inst.FirstDataAt.IsZero() {
		inst.FirstDataAt = now
		first = true
	}
	if inst.Status != StatusActive {
		change = &StatusChange{Symbol: symbol, OldStatus: inst.Status, NewStatus: StatusActive, At: now}
		inst.Status = StatusActive
		inst.RejectReason = ""
	}
	return first, change
}

func (s *registryState) markRejected(symbol, reason string, now time.Time) *StatusChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.addLocked(symbol)
	inst.RejectReason = reason
	if inst.Status == StatusRejected {
		return nil
	}
	change := &StatusChange{Symbol: symbol, OldStatus: inst.Status, NewStatus: StatusRejected, Reason: reason, At: now}
	inst.Status = StatusRejected
	return change
}

func (s *registryState) countTick(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.instruments[symbol]; ok {
		inst.Ticks++
	}
}

func (s *registryState) summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{Tested: len(s.instruments)}
	for _, inst := range s.instruments {
		switch inst.Status {
		case StatusActive:
			sum.Active++
		case StatusRejected:
			sum.Rejected++
			sum.Failed = append(sum.Failed, inst.Symbol)
		default:
			sum.Pending++
		}
	}
	sort.Strings(sum.Failed)
	return sum
}

// notifyChange publishes without blocking. When the buffer is full the
// oldest change is dropped.
func (s *registryState) notifyChange(c StatusChange) {
	select {
	case s.changes <- c:
		return
	default:
	}
	select {
	case <-s.changes:
	default:
	}
	select {
	case s.changes <- c:
	default:
	}
}
