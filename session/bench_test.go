package session_test

import (
	"testing"

	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/manager"
	"github.com/tu-studio/anira/pool"
	"github.com/tu-studio/anira/processor"
)

// BenchmarkProcessBlock replays a ramp signal through a Manager and
// reports throughput in bytes of float32 samples per second, the
// Go-side equivalent of
// anira's ProcessBlockFixture real-time-factor benchmark.
func BenchmarkProcessBlock(b *testing.B) {
	p := pool.New(pool.Options{Workers: 2})
	defer p.Shutdown()

	cfg := config.InferenceConfig{
		ModelInputSize: 512, ModelOutputSize: 512, BatchSize: 1,
		SlotOverallocationFactor: 4,
	}
	host := config.HostAudioConfig{HostChannels: 2, HostBufferSize: 512, HostSampleRate: 48000}

	m := manager.New(p, cfg, processor.NewDefaultProcessor(), nil)
	if err := m.Prepare(host); err != nil {
		b.Fatal(err)
	}

	buf := [][]float32{
		make([]float32, host.HostBufferSize),
		make([]float32, host.HostBufferSize),
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for c := range buf {
			for s := range buf[c] {
				buf[c][s] = float32((i*host.HostBufferSize + s) % 1000)
			}
		}
		m.Process(buf)
	}
	b.SetBytes(int64(host.HostBufferSize * len(buf) * 4))
}
