// Package session implements the per-stream state the scheduling core
// keeps for one prepared inference stream: its send/receive ring
// buffers, one queue-slot pool per host channel, and the lifecycle state
// machine a session moves through between Prepare and Release.
package session

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/internal/errors"
	"github.com/tu-studio/anira/processor"
	"github.com/tu-studio/anira/ringbuf"
	"github.com/tu-studio/anira/slot"
)

// State is a session's position in its lifecycle.
type State int32

const (
	Uninitialised State = iota
	Prepared
	Running
	Released
)

func (s State) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Prepared:
		return "prepared"
	case Running:
		return "running"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// channelLane is one host channel's independent slot pool. Slots are
// claimed and consumed in the same round-robin order, which is what
// keeps dispatch and collection strictly FIFO: the slot consumed next is
// always the one claimed earliest among those not yet consumed, because
// claim and consume walk the same fixed-size ring at the same stride.
//
// claimMu serializes claimCounter's read-check-increment sequence: more
// than one worker goroutine can call ClaimNext for the same channel
// concurrently (the pool's dispatch passes are not themselves mutually
// exclusive), and the counter needs the same protection ConsumeNext gets
// from the pool's per-channel drain lock.
type channelLane struct {
	slots          []*slot.Slot
	claimMu        sync.Mutex
	claimCounter   int64
	consumeCounter int64
}

// Session is one prepared inference stream: the data that §"session" in
// the scheduling design calls out as per-stream queues and counters.
type Session struct {
	ID int

	cfg  config.InferenceConfig
	host config.HostAudioConfig
	proc processor.PrePostProcessor

	SendBuffer    *ringbuf.RingBuffer
	ReceiveBuffer *ringbuf.RingBuffer

	lanes []channelLane

	state          atomic.Int32
	currentBackend atomic.Int32
}

// NewSession constructs a session in the Uninitialised state. It is not
// usable for Process calls until Prepare succeeds.
func NewSession(id int, cfg config.InferenceConfig, proc processor.PrePostProcessor) *Session {
	s := &Session{ID: id, cfg: cfg, proc: proc}
	s.currentBackend.Store(int32(cfg.StartBackend))
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Backend returns the currently selected backend.
func (s *Session) Backend() config.Backend { return config.Backend(s.currentBackend.Load()) }

// SetBackend switches the backend a session's slots will be dispatched
// to. Safe to call at any time, including while Running: anira's
// set_backend is a same-lock-free field swap observed by the next slot
// claim, which is what this mirrors.
func (s *Session) SetBackend(b config.Backend) { s.currentBackend.Store(int32(b)) }

// Config returns the session's inference configuration.
func (s *Session) Config() config.InferenceConfig { return s.cfg }

// HostConfig returns the host audio configuration most recently passed
// to Prepare.
func (s *Session) HostConfig() config.HostAudioConfig { return s.host }

// Channels returns the number of independent per-channel lanes.
func (s *Session) Channels() int { return len(s.lanes) }

// SlotsPerChannel returns the number of pre-allocated slots in each
// channel's lane, as sized by ComputeSlotCount.
func (s *Session) SlotsPerChannel() int {
	if len(s.lanes) == 0 {
		return 0
	}
	return len(s.lanes[0].slots)
}

// ComputeSlotCount sizes a channel's slot pool, following
// SessionElement::prepare()'s structs-per-buffer / structs-per-inference-time
// derivation: enough slots to cover one host buffer's worth of dispatch
// plus however many additional buffers the worst-case inference time can
// span, multiplied by the configured overallocation factor.
func ComputeSlotCount(cfg config.InferenceConfig, host config.HostAudioConfig) int {
	cfg = cfg.WithDefaults()
	outputSize := float64(cfg.NewModelOutputSize())
	if outputSize <= 0 {
		outputSize = 1
	}

	maxInferenceTimeSamples := float64(cfg.MaxInferenceTimeSamples(host.HostSampleRate))

	structsPerBuffer := math.Ceil(float64(host.HostBufferSize) / outputSize)
	if structsPerBuffer < 1 {
		structsPerBuffer = 1
	}

	var structsPerMaxInferenceTime float64
	var maxInferenceTimesPerBuffer float64 = 1
	if maxInferenceTimeSamples > 0 {
		structsPerMaxInferenceTime = math.Ceil(maxInferenceTimeSamples / outputSize)
		structsPerMaxInferenceTime = math.Ceil(structsPerMaxInferenceTime/structsPerBuffer) * structsPerBuffer
		maxInferenceTimesPerBuffer = math.Max(math.Floor(float64(host.HostBufferSize)/maxInferenceTimeSamples), 1)
	}

	nStructs := int(structsPerBuffer + structsPerMaxInferenceTime*math.Ceil(structsPerBuffer/maxInferenceTimesPerBuffer))
	if nStructs < 1 {
		nStructs = 1
	}
	nStructs *= cfg.SlotOverallocationFactor
	return nStructs
}

// Prepare allocates the session's ring buffers and per-channel slot
// pools for the given host audio geometry, and moves the session to
// Prepared. Safe to call again after Release to re-prepare for a new
// host configuration.
func (s *Session) Prepare(host config.HostAudioConfig) error {
	if err := host.Validate(); err != nil {
		return err
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	current := s.State()
	if current == Running {
		return errors.Newf("session %d: cannot Prepare while Running", s.ID).
			Category(errors.CategoryState).
			Context("session_id", s.ID).
			Build()
	}

	s.host = host
	s.cfg = s.cfg.WithDefaults()

	// Matches sendBuffer/receiveBuffer.initializeWithPositions sizing:
	// fifty seconds of headroom at the host sample rate, per channel.
	capacity := host.HostSampleRate * 50
	s.SendBuffer = ringbuf.New(host.HostChannels, capacity)
	s.ReceiveBuffer = ringbuf.New(host.HostChannels, capacity)

	slotsPerLane := ComputeSlotCount(s.cfg, host)
	s.lanes = make([]channelLane, host.HostChannels)
	for c := range host.HostChannels {
		s.lanes[c].slots = make([]*slot.Slot, slotsPerLane)
		for i := range slotsPerLane {
			s.lanes[c].slots[i] = slot.NewSlot(s.cfg.NewModelInputSize(), s.cfg.NewModelOutputSize())
		}
	}

	s.state.Store(int32(Prepared))
	return nil
}

// Run moves a Prepared session to Running; Process calls are only valid
// once Running.
func (s *Session) Run() error {
	if s.State() != Prepared {
		return errors.Newf("session %d: cannot Run from state %s", s.ID, s.State()).
			Category(errors.CategoryState).
			Build()
	}
	s.state.Store(int32(Running))
	return nil
}

// Release tears the session down: clears buffers, force-frees every
// slot, and transitions to Released.
func (s *Session) Release() {
	if s.SendBuffer != nil {
		s.SendBuffer.Reset()
	}
	if s.ReceiveBuffer != nil {
		s.ReceiveBuffer.Reset()
	}
	for c := range s.lanes {
		for _, sl := range s.lanes[c].slots {
			sl.ForceFree()
		}
		s.lanes[c].claimCounter = 0
		s.lanes[c].consumeCounter = 0
	}
	s.state.Store(int32(Released))
}

// ClaimNext claims the next slot in the given channel's lane for a new
// inference dispatch, in strict FIFO order. ok is false if the lane's
// pool is exhausted (every slot still in flight or awaiting
// consumption), which signals the caller to back off rather than block.
func (s *Session) ClaimNext(channel int) (sl *slot.Slot, ok bool) {
	lane := &s.lanes[channel]
	lane.claimMu.Lock()
	defer lane.claimMu.Unlock()

	idx := int(lane.claimCounter) % len(lane.slots)
	candidate := lane.slots[idx]
	if !candidate.TryClaim(lane.claimCounter) {
		return nil, false
	}
	lane.claimCounter++
	return candidate, true
}

// ConsumeNext returns the next slot in the given channel's lane that is
// ready for consumption (Completed), in the same FIFO order ClaimNext
// handed slots out in, and moves it to Consumed so the caller can Release
// it once its output is read. ok is false if that slot is not yet
// Completed.
func (s *Session) ConsumeNext(channel int) (sl *slot.Slot, ok bool) {
	lane := &s.lanes[channel]
	idx := int(lane.consumeCounter) % len(lane.slots)
	candidate := lane.slots[idx]
	if !candidate.TryConsume() {
		return nil, false
	}
	lane.consumeCounter++
	return candidate, true
}

// Processor returns the session's pre/post-processing strategy.
func (s *Session) Processor() processor.PrePostProcessor { return s.proc }
