// Command anirademo drives the scheduling core over a WAV file from the
// command line, simulating a fixed-block-size audio host callback loop
// instead of a real audio device. It exists to exercise Manager end to end
// without any actual realtime audio hardware.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/smallnest/ringbuffer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/internal/logging"
	"github.com/tu-studio/anira/manager"
	"github.com/tu-studio/anira/pool"
	"github.com/tu-studio/anira/processor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "anirademo [wav file]",
		Short: "Replay a WAV file through the inference scheduling core",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], v)
		},
	}

	flags := cmd.Flags()
	flags.Int("buffer-size", 512, "simulated host callback block size, in samples")
	flags.Int("workers", 0, "worker pool size (0 = auto-detect from CPU topology)")
	flags.String("backend", "none", "backend selector to set: none, libtorch, onnx, tflite (only the none adapter is registered, and every selection runs it)")
	flags.String("model-path", "", "model artifact path recorded in the inference config (no adapter in this demo loads it)")
	flags.Duration("max-inference-time", 0, "worst-case per-block inference time budget")
	flags.Bool("verbose", false, "enable debug logging")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("ANIRA")
	v.AutomaticEnv()

	return cmd
}

func run(path string, v *viper.Viper) error {
	logging.Init()
	if v.GetBool("verbose") {
		logging.SetLevel(logging.LevelTrace)
	}
	logger := logging.ForComponent("anirademo")

	channels, sampleRate, samples, err := decodeWAV(path)
	if err != nil {
		return fmt.Errorf("decode wav: %w", err)
	}
	logger.Info("decoded wav file", "path", path, "channels", channels,
		"sample_rate", sampleRate, "frames", len(samples[0]))

	backendName := v.GetString("backend")
	backend, err := parseBackend(backendName)
	if err != nil {
		return err
	}

	bufferSize := v.GetInt("buffer-size")
	host := config.HostAudioConfig{
		HostChannels:   channels,
		HostBufferSize: bufferSize,
		HostSampleRate: sampleRate,
	}
	cfg := config.InferenceConfig{
		ModelInputSize:    bufferSize,
		ModelOutputSize:   bufferSize,
		BatchSize:         1,
		MaxInferenceTime:  v.GetDuration("max-inference-time"),
		ModelArtifactPath: v.GetString("model-path"),
		StartBackend:      backend,
	}

	p := pool.New(pool.Options{Workers: v.GetInt("workers")})
	defer p.Shutdown()

	m := manager.New(p, cfg, processor.NewDefaultProcessor(), nil)
	defer m.Release()

	if err := m.Prepare(host); err != nil {
		return fmt.Errorf("prepare session: %w", err)
	}
	m.SetBackend(backend)

	logger.Info("session prepared", "latency_samples", m.GetLatency(),
		"latency_ms", float64(m.GetLatency())/float64(sampleRate)*1000)

	// Stage the decoded samples through a byte ring buffer before
	// simulating the host callback loop, rather than slicing the decoded
	// []float32 directly: a real capture device hands the host raw bytes,
	// and staging through a byte buffer here keeps this harness honest
	// about that boundary existing.
	staged, err := stageSamples(samples, len(samples[0])*4)
	if err != nil {
		return fmt.Errorf("stage samples: %w", err)
	}

	frame := make([]byte, bufferSize*4) // one channel's worth of float32 bytes
	blockBuf := make([][]float32, channels)
	for c := range blockBuf {
		blockBuf[c] = make([]float32, bufferSize)
	}

	totalBlocks := 0
	missedAtEnd := 0
	start := time.Now()
	for {
		blockEmpty := false
		for c := 0; c < channels; c++ {
			n, _ := staged[c].Read(frame)
			if n == 0 {
				blockEmpty = true
				break
			}
			for i := 0; i < n/4; i++ {
				bits := binary.LittleEndian.Uint32(frame[i*4 : i*4+4])
				blockBuf[c][i] = math.Float32frombits(bits)
			}
			for i := n / 4; i < bufferSize; i++ {
				blockBuf[c][i] = 0
			}
		}
		if blockEmpty {
			break
		}

		m.Process(blockBuf)
		totalBlocks++
	}
	missedAtEnd = m.GetMissingBlocks()

	elapsed := time.Since(start)
	logger.Info("playback complete", "blocks", totalBlocks, "missing_blocks", missedAtEnd,
		"catch_up_samples", m.Stats().CatchUpSamples, "elapsed", elapsed)

	fmt.Printf("processed %d blocks (%d samples/block) in %s, %d blocks still missing at end of stream\n",
		totalBlocks, bufferSize, elapsed, missedAtEnd)
	return nil
}

func parseBackend(name string) (config.Backend, error) {
	switch name {
	case "none", "":
		return config.None, nil
	case "libtorch":
		return config.LibTorch, nil
	case "onnx":
		return config.Onnx, nil
	case "tflite":
		return config.TFLite, nil
	default:
		return config.None, fmt.Errorf("unknown backend %q", name)
	}
}

// stageSamples copies each channel's decoded samples into its own byte
// ring buffer, mirroring how a capture callback would hand raw bytes to a
// staging buffer ahead of the simulated host loop.
func stageSamples(samples [][]float32, capacityBytes int) ([]*ringbuffer.RingBuffer, error) {
	out := make([]*ringbuffer.RingBuffer, len(samples))
	for c, chanSamples := range samples {
		rb := ringbuffer.New(capacityBytes)
		raw := make([]byte, len(chanSamples)*4)
		for i, s := range chanSamples {
			binary.LittleEndian.PutUint32(raw[i*4:i*4+4], math.Float32bits(s))
		}
		if _, err := rb.Write(raw); err != nil {
			return nil, fmt.Errorf("stage channel %d: %w", c, err)
		}
		out[c] = rb
	}
	return out, nil
}

// decodeWAV reads an entire WAV file into one []float32 slice per channel,
// converting integer PCM samples to normalized floats according to the
// file's bit depth.
func decodeWAV(path string) (channels, sampleRate int, samples [][]float32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return 0, 0, nil, fmt.Errorf("%s is not a valid wav file", path)
	}

	var divisor float32
	switch decoder.BitDepth {
	case 16:
		divisor = 32768.0
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return 0, 0, nil, fmt.Errorf("unsupported bit depth %d", decoder.BitDepth)
	}

	channels = int(decoder.NumChans)
	sampleRate = int(decoder.SampleRate)
	samples = make([][]float32, channels)

	const chunkFrames = 4096
	buf := &audio.IntBuffer{
		Data:   make([]int, chunkFrames*channels),
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: channels},
	}
	for {
		n, rerr := decoder.PCMBuffer(buf)
		if rerr != nil {
			return 0, 0, nil, rerr
		}
		if n == 0 {
			break
		}
		for i := 0; i < n; i++ {
			c := i % channels
			samples[c] = append(samples[c], float32(buf.Data[i])/divisor)
		}
	}

	return channels, sampleRate, samples, nil
}
