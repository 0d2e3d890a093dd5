// Package slot implements the queue-slot pool backing each session: a
// fixed-size array of pre-allocated inference buffers that pool workers
// claim, fill and run inference on, and that are then consumed (their
// output pushed to the session's receive buffer) in strict FIFO order,
// all through session.Session.
package slot

import (
	"sync/atomic"

	"github.com/tu-studio/anira/internal/errors"
)

// State is a slot's position in its lifecycle.
type State int32

const (
	// Free: unclaimed, available to the producer.
	Free State = iota
	// Claimed: reserved by a worker, input not yet filled.
	Claimed
	// InFlight: handed to a worker for inference.
	InFlight
	// Completed: worker has written output, awaiting consumption.
	Completed
	// Consumed: taken for reading its output; freed once that is done.
	Consumed
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Completed:
		return "completed"
	case Consumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// Slot is one pre-allocated inference buffer. Input/Output are sized at
// construction to the session's effective (batch-folded) tensor widths
// and never reallocated.
type Slot struct {
	Input  []float32
	Output []float32

	// SequenceID orders slots in submission order; the producer claims
	// the slot whose SequenceID is the oldest unclaimed one, giving
	// strict FIFO dispatch and consumption.
	SequenceID int64

	state atomic.Int32
}

// NewSlot allocates a slot with the given tensor widths.
func NewSlot(inputSize, outputSize int) *Slot {
	return &Slot{
		Input:  make([]float32, inputSize),
		Output: make([]float32, outputSize),
	}
}

// State returns the slot's current lifecycle state.
func (s *Slot) State() State {
	return State(s.state.Load())
}

// TryClaim transitions Free -> Claimed, assigning sequenceID. Returns
// false if the slot was not Free.
func (s *Slot) TryClaim(sequenceID int64) bool {
	if !s.state.CompareAndSwap(int32(Free), int32(Claimed)) {
		return false
	}
	s.SequenceID = sequenceID
	return true
}

// TrySubmit transitions Claimed -> InFlight, meaning the input buffer is
// filled and a worker may now run inference on it.
func (s *Slot) TrySubmit() bool {
	return s.state.CompareAndSwap(int32(Claimed), int32(InFlight))
}

// TryComplete transitions InFlight -> Completed, called by a worker once
// inference has written Output.
func (s *Slot) TryComplete() bool {
	return s.state.CompareAndSwap(int32(InFlight), int32(Completed))
}

// TryConsume transitions Completed -> Consumed, called when the consumer
// takes the slot (session.Session.ConsumeNext) before copying Output out.
func (s *Slot) TryConsume() bool {
	return s.state.CompareAndSwap(int32(Completed), int32(Consumed))
}

// Release transitions Consumed -> Free, making the slot available again.
// Returns an error if the slot was not Consumed, which indicates a bug in
// the caller's state tracking rather than a recoverable runtime condition.
func (s *Slot) Release() error {
	if !s.state.CompareAndSwap(int32(Consumed), int32(Free)) {
		return errors.Newf("cannot release slot %d: not in consumed state (state=%s)", s.SequenceID, s.State()).
			Category(errors.CategoryState).
			Context("sequence_id", s.SequenceID).
			Build()
	}
	return nil
}

// ForceFree resets the slot to Free unconditionally. Used only when
// tearing down a session (session.Session.Release) so no slot is left
// stranded in a non-Free state across a prepare/release cycle.
func (s *Slot) ForceFree() {
	s.state.Store(int32(Free))
}
