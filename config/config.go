// Package config holds the immutable, host- and model-supplied configuration
// that the scheduling core is built around: the inference model's shapes and
// timing budget, and the audio host's block geometry.
package config

import (
	"time"

	"github.com/tu-studio/anira/internal/errors"
)

// Backend identifies which inference engine a session should dispatch to.
type Backend int

const (
	// None is the passthrough backend, used for measurement and as the
	// fallback when the selected backend has no adapter registered.
	None Backend = iota
	LibTorch
	Onnx
	TFLite
)

func (b Backend) String() string {
	switch b {
	case None:
		return "none"
	case LibTorch:
		return "libtorch"
	case Onnx:
		return "onnx"
	case TFLite:
		return "tflite"
	default:
		return "unknown"
	}
}

// Component is the errors-package component name used throughout this module.
const Component = "anira"

// InferenceConfig is the immutable per-stream model configuration described
// in spec §3. ModelInputSize/ModelOutputSize are the model's natural tensor
// sizes; NewModelInputSize/NewModelOutputSize are the effective per-batch
// sizes once BatchSize is folded in, matching the `new_model_*` naming in
// the originating design.
type InferenceConfig struct {
	ModelInputSize  int
	ModelOutputSize int
	BatchSize       int
	ModelLatency    int // samples of deterministic algorithmic delay
	MaxInferenceTime time.Duration // worst-case wall time for one slot evaluation

	// WaitInProcessBlock is the threshold (in multiples of the host block
	// size) below which Manager.Prepare skips initialisation discard
	// entirely. Defaults to 1 (one host block) per §6.
	WaitInProcessBlock float64

	// SlotOverallocationFactor multiplies the slot-count formula in §4.2.
	// The source material toggles this between 1 and 4 with 4 intended for
	// deployment (§9 open question); default to 4.
	SlotOverallocationFactor int

	// Stateful marks recurrent models whose processors keep hidden state
	// across slots (no overlap-window context needs carrying — the model
	// itself owns recurrence).
	Stateful bool

	// ModelArtifactPath records the model artifact location for the
	// stream. No backend adapter reads it: each adapter loads from the
	// model path given in its own options.
	ModelArtifactPath string

	// StartBackend is the backend selected when the session is created,
	// before any SetBackend call.
	StartBackend Backend
}

// NewModelInputSize is the effective input width per batch slot: the
// model's natural input tensor width folded with BatchSize, matching the
// `new_model_input_size` quantity the slot-count formula (§4.2) and
// per-slot tensor allocation are sized against.
func (c InferenceConfig) NewModelInputSize() int {
	return c.ModelInputSize * c.BatchSize
}

// NewModelOutputSize is the effective output width per batch slot: the
// model's natural output tensor width folded with BatchSize, matching
// `new_model_output_size`.
func (c InferenceConfig) NewModelOutputSize() int {
	return c.ModelOutputSize * c.BatchSize
}

// Validate checks the configuration for invalid tensor shapes, a
// non-positive batch size, and negative latency or inference time. It does
// not check the model artifact; a missing artifact is reported by the
// backend adapter's PrepareToPlay.
func (c InferenceConfig) Validate() error {
	if c.ModelInputSize <= 0 || c.ModelOutputSize <= 0 {
		return errors.Newf("invalid model tensor shape: input=%d output=%d", c.ModelInputSize, c.ModelOutputSize).
			Component(Component).
			Category(errors.CategoryValidation).
			Build()
	}
	if c.BatchSize <= 0 {
		return errors.Newf("batch size must be positive, got %d", c.BatchSize).
			Component(Component).
			Category(errors.CategoryValidation).
			Build()
	}
	if c.ModelLatency < 0 {
		return errors.Newf("model latency cannot be negative, got %d", c.ModelLatency).
			Component(Component).
			Category(errors.CategoryValidation).
			Build()
	}
	if c.MaxInferenceTime < 0 {
		return errors.Newf("max inference time cannot be negative").
			Component(Component).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// WithDefaults fills in the zero-valued tunables with the documented
// defaults (§6, §9) and returns the result; it does not mutate the receiver.
func (c InferenceConfig) WithDefaults() InferenceConfig {
	if c.WaitInProcessBlock == 0 {
		c.WaitInProcessBlock = 1
	}
	if c.SlotOverallocationFactor == 0 {
		c.SlotOverallocationFactor = 4
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1
	}
	return c
}

// MaxInferenceTimeSamples returns T_s, the worst-case inference time
// expressed in samples at the given host sample rate, rounded up.
func (c InferenceConfig) MaxInferenceTimeSamples(sampleRate int) int {
	if c.MaxInferenceTime <= 0 {
		return 0
	}
	ms := float64(c.MaxInferenceTime) / float64(time.Millisecond)
	samples := ms * float64(sampleRate) / 1000.0
	return ceilInt(samples)
}

func ceilInt(v float64) int {
	i := int(v)
	if float64(i) < v {
		i++
	}
	return i
}

// HostAudioConfig is the audio host's fixed block geometry (spec §3, §6).
type HostAudioConfig struct {
	HostChannels   int
	HostBufferSize int // samples per callback, H
	HostSampleRate int
}

// Validate checks the host audio configuration.
func (h HostAudioConfig) Validate() error {
	if h.HostChannels <= 0 || h.HostBufferSize <= 0 || h.HostSampleRate <= 0 {
		return errors.Newf("invalid host audio config: channels=%d buffer_size=%d sample_rate=%d",
			h.HostChannels, h.HostBufferSize, h.HostSampleRate).
			Component(Component).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Preset names a worked (model_input_size, model_output_size, model_latency)
// tuple drawn from anira's benchmark model-size configs
// (Medium_CNNConfig_{256,512,8192}, StatefulRNNConfig4096). These exist as
// documentation/test fixtures only — no model weights ship with this module.
type Preset struct {
	Name            string
	ModelInputSize  int
	ModelOutputSize int
	ModelLatency    int
	Stateful        bool
}

// Presets mirrors anira's bundled benchmark configurations.
var Presets = map[string]Preset{
	"cnn-256":       {Name: "cnn-256", ModelInputSize: 256, ModelOutputSize: 256, ModelLatency: 0},
	"cnn-512":       {Name: "cnn-512", ModelInputSize: 512, ModelOutputSize: 512, ModelLatency: 0},
	"cnn-8192":      {Name: "cnn-8192", ModelInputSize: 8192, ModelOutputSize: 8192, ModelLatency: 0},
	"stateful-4096": {Name: "stateful-4096", ModelInputSize: 4096, ModelOutputSize: 4096, ModelLatency: 4096, Stateful: true},
}
