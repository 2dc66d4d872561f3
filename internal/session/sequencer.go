package session

import (
	"strconv"
	"sync"
)

// Sequencer allocates outbound MsgSeqNum values and MDReqIDs. Both counters
// are monotonic and never reused.
type Sequencer struct {
	mu    sync.Mutex
	seq   int
	reqID int
}

// NewSequencer creates a sequencer whose first sequence number is 1.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// NextSeqNum returns the next outbound sequence number.
func (s *Sequencer) NextSeqNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// LastSeqNum returns the most recently allocated sequence number.
func (s *Sequencer) LastSeqNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// NextRequestID returns the next market data request id.
func (s *Sequencer) NextRequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqID++
	return strconv.Itoa(s.reqID)
}
