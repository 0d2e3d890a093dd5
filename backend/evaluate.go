package backend

import "github.com/tu-studio/anira/internal/errors"

// Evaluate is the forward-pass seam LibTorchAdapter and OnnxAdapter
// delegate to. A real engine binding plugs in here; see
// DESIGN.md for why no general-purpose LibTorch/ONNX Runtime tensor
// binding exists anywhere in the example pack for this module to adopt.
type Evaluate func(input, output []float32) error

// PassthroughEvaluate is the default Evaluate used when no real engine
// binding is supplied: a deterministic placeholder that behaves like a
// unity-gain FIR of length min(len(input), len(output)), so adapters
// built on it remain fully exercised by tests and by backend switching
// without claiming to run any real model.
func PassthroughEvaluate(input, output []float32) error {
	n := min(len(input), len(output))
	copy(output[:n], input[:n])
	for i := n; i < len(output); i++ {
		output[i] = 0
	}
	return nil
}

func validateArtifactPath(path string) error {
	if path == "" {
		return errors.Newf("no model artifact path configured").
			Category(errors.CategoryModelLoad).
			Build()
	}
	return nil
}
