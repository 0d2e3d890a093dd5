package backend

import (
	"runtime"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/internal/errors"
)

// TFLiteAdapter runs inference through a loaded TensorFlow Lite model,
// following the same model-load/thread-count/XNNPACK-delegate sequence
// used to bring up the BirdNET interpreter.
type TFLiteAdapter struct {
	modelPath  string
	threads    int
	useXNNPACK bool

	interpreter *tflite.Interpreter
}

// TFLiteOptions configures a TFLiteAdapter.
type TFLiteOptions struct {
	ModelPath  string
	Threads    int // 0 means determineThreadCount picks it
	UseXNNPACK bool
}

// NewTFLiteAdapter constructs an adapter from a .tflite artifact path.
// The model itself is loaded lazily in PrepareToPlay, once the session
// knows the effective tensor widths.
func NewTFLiteAdapter(opts TFLiteOptions) *TFLiteAdapter {
	return &TFLiteAdapter{
		modelPath:  opts.ModelPath,
		threads:    opts.Threads,
		useXNNPACK: opts.UseXNNPACK,
	}
}

func determineThreadCount(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// PrepareToPlay loads the model file and allocates the interpreter's
// tensors. inputSize/outputSize are advisory here: the interpreter's own
// tensor shapes, set when the model was exported, are authoritative, and
// a mismatch surfaces as a ProcessBlock error rather than here.
func (t *TFLiteAdapter) PrepareToPlay(inputSize, outputSize int) error {
	if t.modelPath == "" {
		return errors.Newf("tflite adapter: no model artifact path configured").
			Category(errors.CategoryModelLoad).
			Build()
	}

	model := tflite.NewModelFromFile(t.modelPath)
	if model == nil {
		return errors.Newf("tflite adapter: cannot load model from %s", t.modelPath).
			Category(errors.CategoryModelLoad).
			Context("model_path", t.modelPath).
			Build()
	}

	threads := determineThreadCount(t.threads)
	options := tflite.NewInterpreterOptions()

	if t.useXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))})
		if delegate == nil {
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, userData any) {}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return errors.Newf("tflite adapter: cannot create interpreter for %s", t.modelPath).
			Category(errors.CategoryModelLoad).
			Context("model_path", t.modelPath).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return errors.Newf("tflite adapter: tensor allocation failed for %s", t.modelPath).
			Category(errors.CategoryModelLoad).
			Context("model_path", t.modelPath).
			Build()
	}

	t.interpreter = interpreter
	return nil
}

// ProcessBlock copies input into the interpreter's input tensor, invokes
// the model, and copies the output tensor into output.
func (t *TFLiteAdapter) ProcessBlock(input, output []float32) error {
	if t.interpreter == nil {
		return errors.Newf("tflite adapter: ProcessBlock called before PrepareToPlay").
			Category(errors.CategoryState).
			Build()
	}

	inputTensor := t.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return errors.Newf("tflite adapter: no input tensor at index 0").
			Category(errors.CategoryProcessing).
			Build()
	}
	copy(inputTensor.Float32s(), input)

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return errors.Newf("tflite adapter: invoke failed: %v", status).
			Category(errors.CategoryProcessing).
			Build()
	}

	outputTensor := t.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return errors.Newf("tflite adapter: no output tensor at index 0").
			Category(errors.CategoryProcessing).
			Build()
	}
	copy(output, outputTensor.Float32s())
	return nil
}

func (t *TFLiteAdapter) Backend() config.Backend { return config.TFLite }

func (t *TFLiteAdapter) Release() {
	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
}
