// Package freshness filters repeated and replayed telegrams by their
// sequence counter.
//
// A PTM215B transmits every action several times with the same sequence
// counter, and an attacker may capture and re-transmit old telegrams. The
// Guard tracks the last accepted counter S and classifies each incoming
// counter C:
//
//	C == S  Duplicate (debounce of the radio repetition)
//	C <  S  Replayed  (stale or regressed counter)
//	C >  S  Fresh
//
// Comparison is plain unsigned 32-bit; a counter that wraps past 2^32-1
// is reported as Replayed.
package freshness

import (
	"errors"
	"fmt"
	"sync"
)

// Freshness errors, one per rejecting verdict.
var (
	ErrDuplicate = errors.New("freshness: duplicate sequence counter")
	ErrReplayed  = errors.New("freshness: stale sequence counter")
)

// Verdict is the result of checking a sequence counter.
type Verdict uint8

const (
	// Fresh counters are strictly greater than the last accepted one.
	Fresh Verdict = iota

	// Duplicate counters equal the last accepted one.
	Duplicate

	// Replayed counters are lower than the last accepted one.
	Replayed
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case Duplicate:
		return "duplicate"
	case Replayed:
		return "replayed"
	default:
		return fmt.Sprintf("Verdict(%d)", uint8(v))
	}
}

// Err returns the sentinel error for a rejecting verdict, nil for Fresh.
func (v Verdict) Err() error {
	switch v {
	case Duplicate:
		return ErrDuplicate
	case Replayed:
		return ErrReplayed
	default:
		return nil
	}
}

// Guard holds the last accepted sequence counter.
// It is safe for concurrent use. Callers that need check and commit to be a
// single step either use CheckAndAccept or hold their own lock around Check
// and Accept.
type Guard struct {
	last uint32
	mu   sync.Mutex
}

// NewGuard creates a guard with last accepted counter 0.
func NewGuard() *Guard {
	return &Guard{}
}

// NewGuardWithValue creates a guard restored to a known counter.
// Used when the last accepted counter was persisted.
func NewGuardWithValue(last uint32) *Guard {
	return &Guard{last: last}
}

// Check classifies counter without changing state.
func (g *Guard) Check(counter uint32) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()
	return classify(counter, g.last)
}

// Accept records counter as the last accepted value. Counters that are not
// Fresh are ignored so the stored value never moves backwards.
func (g *Guard) Accept(counter uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if classify(counter, g.last) == Fresh {
		g.last = counter
	}
}

// CheckAndAccept classifies counter and records it when Fresh.
func (g *Guard) CheckAndAccept(counter uint32) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := classify(counter, g.last)
	if v == Fresh {
		g.last = counter
	}
	return v
}

// Last returns the last accepted counter.
func (g *Guard) Last() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// classify applies the debounce check first, then the ordering check.
func classify(counter, last uint32) Verdict {
	if counter == last {
		return Duplicate
	}
	if counter < last {
		return Replayed
	}
	return Fresh
}
