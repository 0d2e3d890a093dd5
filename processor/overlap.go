package processor

import "github.com/tu-studio/anira/ringbuf"

// OverlapProcessor is the overlap-aware strategy: each pre-processed
// tensor carries `overlap` samples of context from the previous call
// ahead of `numNewSamples` fresh ones, matching the
// numNewSamples/numOldSamples/offset popSamplesFromBuffer overloads
// anira's PrePostProcessor exposes for batched, overlapping models.
//
// Stateful marks recurrent models whose hidden state (owned by the
// model/backend itself, not this processor) already carries context
// across slots: for those, carried is never populated and PreProcess
// always pops a fresh, non-overlapping window, mirroring anira's
// StatefulRNNConfig (zero overlap, full per-call context via recurrence).
type OverlapProcessor struct {
	overlap int
	carried []float32
	Stateful bool
}

// NewOverlapProcessor constructs an OverlapProcessor that carries
// `overlap` samples of tail context between successive PreProcess calls.
func NewOverlapProcessor(overlap int, stateful bool) *OverlapProcessor {
	return &OverlapProcessor{overlap: overlap, Stateful: stateful}
}

// PreProcess pops the new samples needed to fill input, then shifts in
// the carried overlap window ahead of them (unless Stateful, in which
// case there is no window to carry).
func (p *OverlapProcessor) PreProcess(rb *ringbuf.RingBuffer, channel int, input []float32) {
	if p.Stateful || p.overlap <= 0 || p.overlap >= len(input) {
		rb.PopBlock(channel, input)
		return
	}

	numOld := p.overlap
	numNew := len(input) - numOld

	if len(p.carried) != numOld {
		p.carried = make([]float32, numOld)
	}
	copy(input[:numOld], p.carried)
	rb.PopBlock(channel, input[numOld:numOld+numNew])

	copy(p.carried, input[len(input)-numOld:])
}

// PostProcess pushes the output tensor to the ring buffer unchanged;
// overlap is a pre-processing concern only, matching anira's design
// where the post-process side stays the plain pushSamplesToBuffer call.
func (p *OverlapProcessor) PostProcess(output []float32, rb *ringbuf.RingBuffer, channel int) {
	pushSamplesToBuffer(output, rb, channel)
}

// Reset clears any carried context, used when a session re-prepares.
func (p *OverlapProcessor) Reset() {
	p.carried = nil
}
