package ringbuf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopFIFO(t *testing.T) {
	rb := New(1, 8)
	for i := range 5 {
		ok := rb.PushSample(0, float32(i))
		require.True(t, ok)
	}
	assert.Equal(t, 5, rb.AvailableSamples(0))
	for i := range 5 {
		v, ok := rb.PopSample(0)
		require.True(t, ok)
		assert.Equal(t, float32(i), v)
	}
	assert.Equal(t, 0, rb.AvailableSamples(0))
}

func TestPushFullDrops(t *testing.T) {
	rb := New(1, 4)
	for range 4 {
		require.True(t, rb.PushSample(0, 1))
	}
	assert.False(t, rb.PushSample(0, 1))
	assert.Equal(t, 4, rb.AvailableSamples(0))
}

func TestPopEmpty(t *testing.T) {
	rb := New(1, 4)
	_, ok := rb.PopSample(0)
	assert.False(t, ok)
}

func TestChannelsIndependent(t *testing.T) {
	rb := New(2, 4)
	rb.PushSample(0, 1)
	rb.PushSample(1, 2)
	rb.PushSample(1, 3)
	assert.Equal(t, 1, rb.AvailableSamples(0))
	assert.Equal(t, 2, rb.AvailableSamples(1))
}

func TestBlockPushPop(t *testing.T) {
	rb := New(1, 16)
	in := []float32{1, 2, 3, 4, 5}
	n := rb.PushBlock(0, in)
	assert.Equal(t, 5, n)
	out := make([]float32, 5)
	n = rb.PopBlock(0, out)
	assert.Equal(t, 5, n)
	assert.Equal(t, in, out)
}

func TestWraparound(t *testing.T) {
	rb := New(1, 4)
	for i := range 4 {
		rb.PushSample(0, float32(i))
	}
	for range 4 {
		rb.PopSample(0)
	}
	for i := range 4 {
		require.True(t, rb.PushSample(0, float32(i+10)))
	}
	for i := range 4 {
		v, ok := rb.PopSample(0)
		require.True(t, ok)
		assert.Equal(t, float32(i+10), v)
	}
}

func TestConcurrentSPSC(t *testing.T) {
	rb := New(1, 256)
	const n = 10000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := range n {
			for !rb.PushSample(0, float32(i)) {
			}
		}
	}()

	received := make([]float32, 0, n)
	go func() {
		defer wg.Done()
		for len(received) < n {
			if v, ok := rb.PopSample(0); ok {
				received = append(received, v)
			}
		}
	}()

	wg.Wait()
	require.Len(t, received, n)
	for i, v := range received {
		assert.Equal(t, float32(i), v)
	}
}

func TestReset(t *testing.T) {
	rb := New(1, 4)
	rb.PushSample(0, 1)
	rb.Reset()
	assert.Equal(t, 0, rb.AvailableSamples(0))
	assert.True(t, rb.PushSample(0, 9))
}
