package backend

import (
	"os"

	"github.com/google/uuid"

	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/internal/errors"
	"github.com/tu-studio/anira/internal/logging"
)

// LibTorchAdapter mirrors the construction/lifecycle shape of
// TFLiteAdapter (artifact path, thread negotiation, load failure
// surfaced at PrepareToPlay), but delegates the forward pass itself to
// an injectable Evaluate, since no general-purpose LibTorch tensor
// binding appears anywhere in the example pack (see DESIGN.md).
type LibTorchAdapter struct {
	modelPath string
	threads   int
	evaluate  Evaluate

	loaded bool
}

// LibTorchOptions configures a LibTorchAdapter.
type LibTorchOptions struct {
	ModelPath string
	Threads   int
	// Evaluate overrides the forward pass. Defaults to
	// PassthroughEvaluate when nil.
	Evaluate Evaluate
}

// NewLibTorchAdapter constructs a LibTorch-shaped adapter.
func NewLibTorchAdapter(opts LibTorchOptions) *LibTorchAdapter {
	eval := opts.Evaluate
	if eval == nil {
		eval = PassthroughEvaluate
	}
	return &LibTorchAdapter{
		modelPath: opts.ModelPath,
		threads:   determineThreadCount(opts.Threads),
		evaluate:  eval,
	}
}

func (l *LibTorchAdapter) PrepareToPlay(inputSize, outputSize int) error {
	if err := validateArtifactPath(l.modelPath); err != nil {
		return err
	}
	if _, err := os.Stat(l.modelPath); err != nil {
		return errors.Newf("libtorch adapter: cannot stat model artifact: %w", err).
			Category(errors.CategoryModelLoad).
			Context("model_path", l.modelPath).
			Context("load_id", uuid.NewString()).
			Build()
	}
	if logger := logging.ForComponent("backend.libtorch"); logger != nil {
		logger.Debug("model artifact located",
			"model_path", l.modelPath, "threads", l.threads,
			"input_size", inputSize, "output_size", outputSize)
	}
	l.loaded = true
	return nil
}

func (l *LibTorchAdapter) ProcessBlock(input, output []float32) error {
	if !l.loaded {
		return errors.Newf("libtorch adapter: ProcessBlock called before PrepareToPlay").
			Category(errors.CategoryState).
			Build()
	}
	return l.evaluate(input, output)
}

func (l *LibTorchAdapter) Backend() config.Backend { return config.LibTorch }

func (l *LibTorchAdapter) Release() {
	l.loaded = false
}
