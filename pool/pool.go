// Package pool implements the process-wide worker pool that dispatches
// every session's inference work: a fixed set of goroutines woken by a
// counting semaphore, scanning a copy-on-write session registry rather
// than taking a lock on the hot path.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tu-studio/anira/backend"
	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/internal/errors"
	"github.com/tu-studio/anira/internal/logging"
	"github.com/tu-studio/anira/processor"
	"github.com/tu-studio/anira/session"
	"github.com/tu-studio/anira/telemetry"
)

// Registration bundles a session with the backend adapters and
// pre/post-processing strategy workers use to drive it.
type Registration struct {
	Session   *session.Session
	Processor processor.PrePostProcessor
	Adapters  map[config.Backend]backend.Adapter

	laneLocks []sync.Mutex
}

func (r *Registration) adapterFor(b config.Backend) backend.Adapter {
	if a, ok := r.Adapters[b]; ok {
		return a
	}
	return r.Adapters[config.None]
}

// Pool is the process-wide inference thread pool. Exactly one Pool is
// normally needed per process; nothing prevents constructing more than
// one (e.g. in tests), each with its own worker goroutines and session
// registry.
type Pool struct {
	workers int
	sem     chan struct{}

	registryMu sync.Mutex // serializes registry mutation only, never read from workers
	registry   atomic.Pointer[[]*Registration]
	freeIDs    []int
	nextID     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Options configures a new Pool.
type Options struct {
	Workers int // 0 means DefaultWorkerCount()
	Metrics *telemetry.Metrics
}

// New constructs and starts a Pool's worker goroutines.
func New(opts Options) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkerCount()
	}

	ctx, cancel := context.WithCancel(context.Background())
	empty := make([]*Registration, 0)
	logger := logging.ForComponent("pool")
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		workers: workers,
		sem:     make(chan struct{}, 1000),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		metrics: opts.Metrics,
	}
	p.registry.Store(&empty)

	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) snapshot() []*Registration {
	return *p.registry.Load()
}

// CreateSession registers a new session with the pool and returns it,
// following anira's dense session-ID reuse: released IDs are recycled
// before the counter advances, so a long-running process with many
// short-lived sessions doesn't grow its ID space unboundedly.
func (p *Pool) CreateSession(cfg config.InferenceConfig, proc processor.PrePostProcessor, adapters map[config.Backend]backend.Adapter) *session.Session {
	p.registryMu.Lock()
	defer p.registryMu.Unlock()

	var id int
	if n := len(p.freeIDs); n > 0 {
		id = p.freeIDs[n-1]
		p.freeIDs = p.freeIDs[:n-1]
	} else {
		id = p.nextID
		p.nextID++
	}

	if adapters == nil {
		adapters = map[config.Backend]backend.Adapter{}
	}
	if _, ok := adapters[config.None]; !ok {
		adapters[config.None] = backend.NewNoneAdapter()
	}

	sess := session.NewSession(id, cfg, proc)
	reg := &Registration{Session: sess, Processor: proc, Adapters: adapters}

	old := p.snapshot()
	next := make([]*Registration, len(old), len(old)+1)
	copy(next, old)
	next = append(next, reg)
	p.registry.Store(&next)

	if p.metrics != nil {
		p.metrics.ActiveSessions.Set(float64(len(next)))
	}

	p.logger.Debug("session created", "session_id", id)
	return sess
}

func (p *Pool) registrationFor(sess *session.Session) *Registration {
	for _, reg := range p.snapshot() {
		if reg.Session == sess {
			return reg
		}
	}
	return nil
}

// PrepareSession prepares sess for the given host geometry and loads
// every backend adapter registered for it, following §4.5's "prepare_to_play
// called once at session prepare": every adapter a session might later
// be switched to is brought up synchronously here, not lazily on first
// use, so a set_backend call mid-stream never pays a load cost and a
// failed load surfaces as a configuration error from Prepare itself
// rather than silently degrading to silence later.
//
// laneLocks is also sized here, under registryMu, rather than lazily
// inside dispatchPass: dispatchPass only ever runs once the session is
// Running, which this method is solely responsible for transitioning to,
// so there is no concurrent writer to race with.
func (p *Pool) PrepareSession(sess *session.Session, host config.HostAudioConfig) error {
	if err := sess.Prepare(host); err != nil {
		return err
	}

	reg := p.registrationFor(sess)
	if reg == nil {
		return errors.Newf("pool: session %d is not registered with this pool", sess.ID).
			Category(errors.CategoryState).
			Context("session_id", sess.ID).
			Build()
	}

	cfg := sess.Config()
	for b, adapter := range reg.Adapters {
		if err := adapter.PrepareToPlay(cfg.NewModelInputSize(), cfg.NewModelOutputSize()); err != nil {
			return errors.Newf("pool: backend %s failed to prepare: %w", b, err).
				Category(errors.CategoryModelLoad).
				Context("session_id", sess.ID).
				Context("backend", b.String()).
				Build()
		}
	}

	p.registryMu.Lock()
	reg.laneLocks = make([]sync.Mutex, sess.Channels())
	p.registryMu.Unlock()

	return sess.Run()
}

// ReleaseSession unregisters a session, releases its backend adapters,
// and returns its ID to the free list for reuse.
func (p *Pool) ReleaseSession(sess *session.Session) {
	p.registryMu.Lock()
	defer p.registryMu.Unlock()

	old := p.snapshot()
	next := make([]*Registration, 0, len(old))
	for _, reg := range old {
		if reg.Session == sess {
			for _, a := range reg.Adapters {
				a.Release()
			}
			continue
		}
		next = append(next, reg)
	}
	p.registry.Store(&next)
	p.freeIDs = append(p.freeIDs, sess.ID)
	sess.Release()

	if p.metrics != nil {
		p.metrics.ActiveSessions.Set(float64(len(next)))
	}

	p.logger.Debug("session released", "session_id", sess.ID)
}

// NewDataSubmitted wakes one worker to attempt a dispatch pass across
// every registered session. The session argument is advisory (which
// session produced the wakeup); workers always scan the whole registry,
// since any session's lane may have become ready independently.
func (p *Pool) NewDataSubmitted(sess *session.Session) {
	select {
	case p.sem <- struct{}{}:
	default:
		// A wakeup is already pending; workers will still see this
		// session's new data on their next scan.
	}
}

// NewDataRequest is the consumer-side counterpart: the audio thread
// calling in asking for output. bufferSizeInSec is advisory only (it
// exists to let a future scheduler bias worker wakeups toward sessions
// under tighter deadlines) and has no effect on dispatch today.
func (p *Pool) NewDataRequest(sess *session.Session, bufferSizeInSec float64) {
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.sem:
			p.dispatchPass()
		}
	}
}

// dispatchPass attempts one claim/process/complete cycle per ready
// channel across every registered session, then drains whatever
// channels now have a contiguous run of completed slots.
func (p *Pool) dispatchPass() {
	for _, reg := range p.snapshot() {
		sess := reg.Session
		// Only Running sessions are dispatched: PrepareSession is the
		// sole writer of reg.laneLocks, and it only finishes the
		// Prepared -> Running transition after laneLocks is sized, so
		// gating on Running here means dispatchPass never observes a
		// registration whose laneLocks isn't ready yet.
		if sess.State() != session.Running {
			continue
		}
		inputSize := sess.Config().NewModelInputSize()
		for c := range sess.Channels() {
			if sess.SendBuffer.AvailableSamples(c) >= inputSize {
				p.tryDispatchOne(reg, c)
			}
			p.drainChannel(reg, c)
		}
	}
}

func (p *Pool) tryDispatchOne(reg *Registration, channel int) {
	sess := reg.Session
	// Claim and pre-process under the channel's lane lock, so the send
	// buffer's channel has one reader at a time and slots are filled in
	// claim order.
	reg.laneLocks[channel].Lock()
	if sess.SendBuffer.AvailableSamples(channel) < sess.Config().NewModelInputSize() {
		reg.laneLocks[channel].Unlock()
		return
	}
	sl, ok := sess.ClaimNext(channel)
	if !ok {
		reg.laneLocks[channel].Unlock()
		return
	}
	reg.Processor.PreProcess(sess.SendBuffer, channel, sl.Input)
	reg.laneLocks[channel].Unlock()

	if !sl.TrySubmit() {
		return
	}

	adapter := reg.adapterFor(sess.Backend())
	if err := adapter.ProcessBlock(sl.Input, sl.Output); err != nil {
		p.logger.Warn("backend process_block failed, substituting silence",
			"session_id", sess.ID, "backend", sess.Backend(), "error", err)
		for i := range sl.Output {
			sl.Output[i] = 0
		}
	}
	sl.TryComplete()
}

func (p *Pool) drainChannel(reg *Registration, channel int) {
	if !reg.laneLocks[channel].TryLock() {
		return
	}
	defer reg.laneLocks[channel].Unlock()

	sess := reg.Session
	for {
		sl, ok := sess.ConsumeNext(channel)
		if !ok {
			break
		}
		reg.Processor.PostProcess(sl.Output, sess.ReceiveBuffer, channel)
		if err := sl.Release(); err != nil {
			p.logger.Error("failed to release slot after consumption", "session_id", sess.ID, "error", err)
		}
	}
}

// Shutdown stops every worker goroutine and waits for them to exit.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

// NumWorkers returns the number of worker goroutines this pool runs.
func (p *Pool) NumWorkers() int { return p.workers }

// NumSessions returns the number of currently registered sessions.
func (p *Pool) NumSessions() int { return len(p.snapshot()) }
