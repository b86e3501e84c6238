package writer

import (
	"context"
	"fmt"
	"sync"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// Ticket is a place in the Sequencer's queue. Tickets are never reused.
type Ticket uint64

// Sequencer grants tickets in strict arrival order: Acquire returns once
// every earlier ticket was released. There is no bound on the number of
// waiters.
type Sequencer struct {
	mu        sync.Mutex
	next      Ticket
	serving   Ticket
	waiters   map[Ticket]chan struct{}
	abandoned map[Ticket]bool
}

// NewSequencer returns an idle sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{
		next:      1,
		serving:   1,
		waiters:   make(map[Ticket]chan struct{}),
		abandoned: make(map[Ticket]bool),
	}
}

// Acquire draws a ticket and waits for its turn. If ctx is done first the
// ticket is abandoned: it is skipped when its turn comes, or passed on if
// the turn came concurrently.
func (s *Sequencer) Acquire(ctx context.Context) (Ticket, error) {
	s.mu.Lock()
	t := s.next
	s.next++
	if t == s.serving {
		s.mu.Unlock()
		return t, nil
	}
	ch := make(chan struct{})
	s.waiters[t] = ch
	s.mu.Unlock()

	select {
	case <-ch:
		return t, nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	if t == s.serving {
		s.mu.Unlock()
		// Granted while giving up.
		if err := s.Release(t); err != nil {
			return 0, err
		}
		return 0, ctx.Err()
	}
	delete(s.waiters, t)
	s.abandoned[t] = true
	s.mu.Unlock()
	return 0, ctx.Err()
}

// Release ends t's turn and wakes the next live ticket. Releasing a ticket
// that does not hold the turn is a *ir.BadCodingError.
func (s *Sequencer) Release(t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t != s.serving {
		return &ir.BadCodingError{Message: fmt.Sprintf("release of ticket %d while ticket %d holds the turn", t, s.serving)}
	}

	s.serving++
	for s.abandoned[s.serving] {
		delete(s.abandoned, s.serving)
		s.serving++
	}
	if ch, ok := s.waiters[s.serving]; ok {
		delete(s.waiters, s.serving)
		close(ch)
	}
	return nil
}

// Pending returns the number of tickets issued but not yet released or
// abandoned.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.next-s.serving) - len(s.abandoned)
}
