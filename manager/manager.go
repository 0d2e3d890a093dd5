// Package manager implements InferenceManager, the facade an audio
// callback talks to: prepare the stream once, call Process every block,
// and read back the fixed reported latency and any accumulated missing
// blocks. Process runs on the audio thread: no allocation, no locking
// beyond the atomics session/slot already use, and no logging. Prepare
// allocates the session's buffers and logs, and is called outside the
// audio callback.
package manager

import (
	"log/slog"
	"sync/atomic"

	"github.com/tu-studio/anira/backend"
	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/internal/logging"
	"github.com/tu-studio/anira/pool"
	"github.com/tu-studio/anira/processor"
	"github.com/tu-studio/anira/session"
)

// Manager is one prepared inference stream's audio-callback-facing
// facade, wrapping a session.Session and the pool.Pool that services it.
type Manager struct {
	pool *pool.Pool
	sess *session.Session
	host config.HostAudioConfig

	initializing bool
	bufferCount  int
	initSamples  int

	missingBlocks atomic.Int32
	catchUpTotal  atomic.Int64

	logger *slog.Logger
}

// New creates a session on p and wraps it in a Manager. adapters maps
// each backend a session may be switched to onto a constructed
// backend.Adapter; a config.None entry is added automatically if absent.
func New(p *pool.Pool, cfg config.InferenceConfig, proc processor.PrePostProcessor, adapters map[config.Backend]backend.Adapter) *Manager {
	sess := p.CreateSession(cfg, proc, adapters)
	logger := logging.ForComponent("manager")
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pool:   p,
		sess:   sess,
		logger: logger,
	}
}

// Session exposes the underlying session, mainly for tests.
func (m *Manager) Session() *session.Session { return m.sess }

// SetBackend switches the active backend for subsequent slot dispatch.
func (m *Manager) SetBackend(b config.Backend) { m.sess.SetBackend(b) }

// GetBackend returns the currently active backend.
func (m *Manager) GetBackend() config.Backend { return m.sess.Backend() }

// Prepare readies the session for the given host geometry, loads every
// registered backend adapter (so a later SetBackend never pays a load
// cost and a bad artifact surfaces here rather than as silent silence),
// and computes the initialisation debt and reported latency, following
// InferenceManager::prepare()'s derivation exactly: the number of
// samples of silence substitution needed before the pipeline's first
// real output can arrive, expressed in terms of the worst-case
// inference time and the model's own algorithmic latency.
//
// A backend load failure is a configuration error (§4.8, S4): Prepare
// returns it synchronously and the session is left Prepared, not
// Running.
func (m *Manager) Prepare(host config.HostAudioConfig) error {
	if err := m.pool.PrepareSession(m.sess, host); err != nil {
		return err
	}

	m.host = host
	m.bufferCount = 0
	m.missingBlocks.Store(0)
	m.catchUpTotal.Store(0)
	m.initSamples = computeInitSamples(m.sess.Config(), host)
	m.initializing = float64(m.initSamples) >= m.sess.Config().WaitInProcessBlock*float64(host.HostBufferSize)

	m.logger.Debug("session prepared",
		"session_id", m.sess.ID, "init_samples", m.initSamples, "initializing", m.initializing,
		"latency", m.GetLatency())
	return nil
}

func computeInitSamples(cfg config.InferenceConfig, host config.HostAudioConfig) int {
	cfg = cfg.WithDefaults()
	maxInferenceTimeSamples := cfg.MaxInferenceTimeSamples(host.HostSampleRate)

	// This formula works in terms of the model's raw (non-batch-folded)
	// output width, not NewModelOutputSize: it divides/multiplies by
	// BatchSize itself, matching InferenceManager::prepare()'s use of
	// m_model_output_size rather than m_new_model_output_size.
	divisor := float64(host.HostBufferSize) / (float64(cfg.BatchSize) * float64(cfg.ModelOutputSize))
	stride := cfg.BatchSize * cfg.ModelOutputSize
	var remainder int
	if stride > 0 {
		remainder = host.HostBufferSize % stride
	}

	switch {
	case remainder == 0:
		return int(divisor)*maxInferenceTimeSamples + int(divisor)*cfg.ModelLatency
	case remainder > 0 && remainder < host.HostBufferSize:
		return (int(divisor)+1)*maxInferenceTimeSamples + (int(divisor)+1)*cfg.ModelLatency + host.HostBufferSize
	default:
		return maxInferenceTimeSamples + stride + cfg.ModelLatency
	}
}

// GetLatency returns the fixed reported latency in samples: always a
// multiple of the host block size, the smallest one at or above
// initSamples, following InferenceManager::getLatency().
func (m *Manager) GetLatency() int {
	if m.host.HostBufferSize == 0 {
		return 0
	}
	if m.initSamples%m.host.HostBufferSize == 0 {
		return m.initSamples
	}
	return (m.initSamples/m.host.HostBufferSize + 1) * m.host.HostBufferSize
}

// GetMissingBlocks returns the number of host blocks currently owed
// because inference could not keep up with real time.
func (m *Manager) GetMissingBlocks() int {
	return int(m.missingBlocks.Load())
}

// Process runs one host callback's worth of audio through the pipeline,
// in place: buffer[channel] is overwritten with this stream's output for
// that channel, sample-accurate and ordered, substituting silence while
// still initialising or catching up.
func (m *Manager) Process(buffer [][]float32) {
	if len(buffer) == 0 {
		return
	}
	inputSamples := len(buffer[0])

	for c := range buffer {
		m.sess.SendBuffer.PushBlock(c, buffer[c])
	}

	m.pool.NewDataSubmitted(m.sess)
	timeInSec := float64(inputSamples) / float64(m.host.HostSampleRate)
	m.pool.NewDataRequest(m.sess, timeInSec)

	if m.initializing {
		m.bufferCount += inputSamples
		clearBuffer(buffer)
		if m.bufferCount >= m.initSamples {
			m.initializing = false
		}
		return
	}

	m.processOutput(buffer, inputSamples)
}

// processOutput first drains any backlog built up while inference fell
// behind (discarding the oldest block of output per backlog unit,
// matching the "catch up samples" path), then serves this block's
// output or, if none is ready yet, substitutes silence and records a
// missing block.
func (m *Manager) processOutput(buffer [][]float32, inputSamples int) {
	rb := m.sess.ReceiveBuffer

	for m.missingBlocks.Load() > 0 {
		if rb.AvailableSamples(0) < 2*inputSamples {
			break
		}
		for c := range buffer {
			for range inputSamples {
				rb.PopSample(c)
			}
		}
		m.missingBlocks.Add(-1)
		m.catchUpTotal.Add(int64(inputSamples))
	}

	if rb.AvailableSamples(0) >= inputSamples {
		for c := range buffer {
			for i := range inputSamples {
				v, _ := rb.PopSample(c)
				buffer[c][i] = v
			}
		}
		return
	}

	clearBuffer(buffer)
	m.missingBlocks.Add(1)
}

func clearBuffer(buffer [][]float32) {
	for c := range buffer {
		for i := range buffer[c] {
			buffer[c][i] = 0
		}
	}
}

// Stats is a snapshot of counters safe to sample from outside the audio
// thread (e.g. from telemetry on a timer), never touched by Process
// itself beyond atomic increments.
type Stats struct {
	MissingBlocks   int
	CatchUpSamples  int64
	Initializing    bool
	InitSamples     int
	Latency         int
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	return Stats{
		MissingBlocks:  int(m.missingBlocks.Load()),
		CatchUpSamples: m.catchUpTotal.Load(),
		Initializing:   m.initializing,
		InitSamples:    m.initSamples,
		Latency:        m.GetLatency(),
	}
}

// Release tears the session down and returns it to the pool.
func (m *Manager) Release() {
	m.pool.ReleaseSession(m.sess)
}
