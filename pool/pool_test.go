package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tu-studio/anira/config"
	"github.com/tu-studio/anira/processor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCreateReleaseSessionReusesIDs(t *testing.T) {
	p := New(Options{Workers: 2})
	defer p.Shutdown()

	cfg := config.InferenceConfig{ModelInputSize: 4, ModelOutputSize: 4, BatchSize: 1, SlotOverallocationFactor: 1}
	s1 := p.CreateSession(cfg, processor.NewDefaultProcessor(), nil)
	s2 := p.CreateSession(cfg, processor.NewDefaultProcessor(), nil)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, p.NumSessions())

	p.ReleaseSession(s1)
	assert.Equal(t, 1, p.NumSessions())

	s3 := p.CreateSession(cfg, processor.NewDefaultProcessor(), nil)
	assert.Equal(t, s1.ID, s3.ID, "released IDs should be reused before the counter advances")
}

func TestDispatchPassProcessesQueuedInput(t *testing.T) {
	p := New(Options{Workers: 2})
	defer p.Shutdown()

	cfg := config.InferenceConfig{ModelInputSize: 4, ModelOutputSize: 4, BatchSize: 1, SlotOverallocationFactor: 4}
	host := config.HostAudioConfig{HostChannels: 1, HostBufferSize: 4, HostSampleRate: 48000}

	sess := p.CreateSession(cfg, processor.NewDefaultProcessor(), nil)
	require.NoError(t, p.PrepareSession(sess, host))

	sess.SendBuffer.PushBlock(0, []float32{1, 2, 3, 4})
	p.NewDataSubmitted(sess)

	require.Eventually(t, func() bool {
		return sess.ReceiveBuffer.AvailableSamples(0) >= 4
	}, time.Second, time.Millisecond)

	out := make([]float32, 4)
	sess.ReceiveBuffer.PopBlock(0, out)
	assert.Equal(t, []float32{1, 2, 3, 4}, out)
}

func TestDefaultWorkerCountPositive(t *testing.T) {
	assert.Positive(t, DefaultWorkerCount())
}
