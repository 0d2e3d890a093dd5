// Package ringbuf implements the fixed-capacity, per-channel, single
// producer/single consumer sample queue the scheduling core uses to move
// audio between the realtime host callback and the inference worker pool.
//
// Every method here must be callable from an audio thread without
// allocating or blocking: pushes and pops only touch atomics and
// pre-sized slices.
package ringbuf

import "sync/atomic"

// RingBuffer is a wait-free, fixed-capacity circular buffer of float32
// samples, one independent lane per channel. Exactly one goroutine may
// push to a given channel and exactly one goroutine may pop from it;
// different channels may be driven by different goroutine pairs.
type RingBuffer struct {
	channels int
	capacity int

	data      [][]float32
	writePos  []int64 // only written by the producer for that channel
	readPos   []int64 // only written by the consumer for that channel
	available []atomic.Int64
}

// New allocates a RingBuffer with the given channel count and per-channel
// sample capacity.
func New(channels, capacity int) *RingBuffer {
	rb := &RingBuffer{
		channels:  channels,
		capacity:  capacity,
		data:      make([][]float32, channels),
		writePos:  make([]int64, channels),
		readPos:   make([]int64, channels),
		available: make([]atomic.Int64, channels),
	}
	for c := range channels {
		rb.data[c] = make([]float32, capacity)
	}
	return rb
}

// Channels returns the number of independent lanes.
func (rb *RingBuffer) Channels() int { return rb.channels }

// Capacity returns the per-channel sample capacity.
func (rb *RingBuffer) Capacity() int { return rb.capacity }

// AvailableSamples returns the number of samples currently queued for
// reading on the given channel.
func (rb *RingBuffer) AvailableSamples(channel int) int {
	return int(rb.available[channel].Load())
}

// FreeSamples returns the remaining write headroom on the given channel.
func (rb *RingBuffer) FreeSamples(channel int) int {
	return rb.capacity - rb.AvailableSamples(channel)
}

// PushSample writes one sample to the given channel. It returns false and
// drops the sample if the channel is full, which the caller must treat as
// a capacity-planning bug rather than a recoverable condition: the slot
// pool sizing in session.Session is meant to make this unreachable in
// steady state.
func (rb *RingBuffer) PushSample(channel int, value float32) bool {
	if rb.available[channel].Load() >= int64(rb.capacity) {
		return false
	}
	pos := rb.writePos[channel] % int64(rb.capacity)
	rb.data[channel][pos] = value
	rb.writePos[channel]++
	rb.available[channel].Add(1)
	return true
}

// PushBlock writes a contiguous block of samples to the given channel,
// returning the number actually written before the channel filled.
func (rb *RingBuffer) PushBlock(channel int, values []float32) int {
	n := 0
	for _, v := range values {
		if !rb.PushSample(channel, v) {
			break
		}
		n++
	}
	return n
}

// PopSample removes and returns one sample from the given channel. ok is
// false if no sample was available.
func (rb *RingBuffer) PopSample(channel int) (value float32, ok bool) {
	if rb.available[channel].Load() <= 0 {
		return 0, false
	}
	pos := rb.readPos[channel] % int64(rb.capacity)
	value = rb.data[channel][pos]
	rb.readPos[channel]++
	rb.available[channel].Add(-1)
	return value, true
}

// PopBlock removes up to len(out) samples from the given channel into out,
// returning the number actually popped.
func (rb *RingBuffer) PopBlock(channel int, out []float32) int {
	n := 0
	for n < len(out) {
		v, ok := rb.PopSample(channel)
		if !ok {
			break
		}
		out[n] = v
		n++
	}
	return n
}

// Reset clears all channels back to empty. Not safe to call concurrently
// with PushSample/PopSample on any channel.
func (rb *RingBuffer) Reset() {
	for c := range rb.channels {
		rb.writePos[c] = 0
		rb.readPos[c] = 0
		rb.available[c].Store(0)
	}
}
