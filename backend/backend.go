// Package backend defines the uniform inference-engine contract the
// scheduling core dispatches to, and the concrete adapters (None,
// TFLite, LibTorch, ONNX) that implement it.
package backend

import (
	"github.com/tu-studio/anira/config"
)

// Adapter is the contract every inference engine binding must satisfy.
// PrepareToPlay is called once per session before any ProcessBlock call,
// with the effective (batch-folded) tensor widths the session will use.
// ProcessBlock runs one inference pass: it reads exactly len(input)
// samples and writes exactly len(output) samples. It must be safe to
// call from a worker goroutine but never from the audio thread itself.
type Adapter interface {
	// PrepareToPlay allocates/loads whatever the engine needs for the
	// given input/output tensor widths. Called outside the audio thread.
	PrepareToPlay(inputSize, outputSize int) error

	// ProcessBlock runs one forward pass.
	ProcessBlock(input, output []float32) error

	// Backend identifies which config.Backend this adapter implements.
	Backend() config.Backend

	// Release frees any engine-held resources (interpreters, sessions).
	// Safe to call multiple times.
	Release()
}

// NoneAdapter is the measurement/fallback backend: it performs no
// inference and simply forwards the most recent input samples to the
// output: when the input is longer it copies the input's tail, when it is
// shorter it copies all of it and zero-pads the rest of the output. It
// exists so the scheduling core has a backend that always succeeds and
// carries zero algorithmic latency, used by S1 and as the adapter a
// session falls back to when its selected backend has no adapter
// registered.
type NoneAdapter struct{}

// NewNoneAdapter constructs a NoneAdapter.
func NewNoneAdapter() *NoneAdapter { return &NoneAdapter{} }

func (n *NoneAdapter) PrepareToPlay(inputSize, outputSize int) error { return nil }

func (n *NoneAdapter) ProcessBlock(input, output []float32) error {
	copyLen := min(len(input), len(output))
	copy(output[:copyLen], input[len(input)-copyLen:])
	for i := copyLen; i < len(output); i++ {
		output[i] = 0
	}
	return nil
}

func (n *NoneAdapter) Backend() config.Backend { return config.None }

func (n *NoneAdapter) Release() {}
