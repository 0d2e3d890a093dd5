package backend

import (
	"os"

	"github.com/google/uuid"

	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/internal/errors"
	"github.com/tu-studio/anira/internal/logging"
)

// OnnxAdapter mirrors LibTorchAdapter: real artifact-load lifecycle, the
// forward pass delegated to an injectable Evaluate. k2-fsa/sherpa-onnx-go
// (the only ONNX-adjacent binding in the example pack) wraps a fixed
// speech pipeline, not a generic tensor call, so it cannot back this
// adapter without fabricating an API surface; see DESIGN.md.
type OnnxAdapter struct {
	modelPath string
	threads   int
	evaluate  Evaluate

	loaded bool
}

// OnnxOptions configures an OnnxAdapter.
type OnnxOptions struct {
	ModelPath string
	Threads   int
	Evaluate  Evaluate
}

// NewOnnxAdapter constructs an ONNX-shaped adapter.
func NewOnnxAdapter(opts OnnxOptions) *OnnxAdapter {
	eval := opts.Evaluate
	if eval == nil {
		eval = PassthroughEvaluate
	}
	return &OnnxAdapter{
		modelPath: opts.ModelPath,
		threads:   determineThreadCount(opts.Threads),
		evaluate:  eval,
	}
}

func (o *OnnxAdapter) PrepareToPlay(inputSize, outputSize int) error {
	if err := validateArtifactPath(o.modelPath); err != nil {
		return err
	}
	if _, err := os.Stat(o.modelPath); err != nil {
		return errors.Newf("onnx adapter: cannot stat model artifact: %w", err).
			Category(errors.CategoryModelLoad).
			Context("model_path", o.modelPath).
			Context("load_id", uuid.NewString()).
			Build()
	}
	if logger := logging.ForComponent("backend.onnx"); logger != nil {
		logger.Debug("model artifact located",
			"model_path", o.modelPath, "threads", o.threads,
			"input_size", inputSize, "output_size", outputSize)
	}
	o.loaded = true
	return nil
}

func (o *OnnxAdapter) ProcessBlock(input, output []float32) error {
	if !o.loaded {
		return errors.Newf("onnx adapter: ProcessBlock called before PrepareToPlay").
			Category(errors.CategoryState).
			Build()
	}
	return o.evaluate(input, output)
}

func (o *OnnxAdapter) Backend() config.Backend { return config.Onnx }

func (o *OnnxAdapter) Release() {
	o.loaded = false
}
