// Package processor implements the pre/post-processing strategies that
// sit between a session's ring buffers and an inference slot's
// input/output tensors, following anira's PrePostProcessor pattern: a
// default 1:1 strategy and an overlap-aware one for models that need
// batching or a carried context window.
package processor

import "github.com/tu-studio/anira/ringbuf"

// PrePostProcessor converts between the ring-buffered host-rate samples
// and a slot's model-rate tensors. PreProcess drains the ring buffer into
// a slot's input tensor; PostProcess writes a slot's output tensor back
// into the ring buffer. Both are called by the pool's worker goroutines
// while holding that channel's lane lock, so they never run concurrently
// with each other for the same channel.
type PrePostProcessor interface {
	// PreProcess fills input (len(input) == effective model input size)
	// by popping samples from the given ring-buffer channel.
	PreProcess(rb *ringbuf.RingBuffer, channel int, input []float32)

	// PostProcess pushes output (len(output) == effective model output
	// size) onto the given ring-buffer channel.
	PostProcess(output []float32, rb *ringbuf.RingBuffer, channel int)
}

// DefaultProcessor is the 1:1 strategy: no overlap, no batching. It pops
// exactly len(input) samples and pushes exactly len(output) samples,
// matching PrePostProcessor's base-class behaviour for simple models.
type DefaultProcessor struct{}

// NewDefaultProcessor constructs a DefaultProcessor.
func NewDefaultProcessor() *DefaultProcessor { return &DefaultProcessor{} }

func (p *DefaultProcessor) PreProcess(rb *ringbuf.RingBuffer, channel int, input []float32) {
	popSamplesFromBuffer(rb, channel, input)
}

func (p *DefaultProcessor) PostProcess(output []float32, rb *ringbuf.RingBuffer, channel int) {
	pushSamplesToBuffer(output, rb, channel)
}

func popSamplesFromBuffer(rb *ringbuf.RingBuffer, channel int, out []float32) {
	rb.PopBlock(channel, out)
}

func pushSamplesToBuffer(in []float32, rb *ringbuf.RingBuffer, channel int) {
	rb.PushBlock(channel, in)
}
