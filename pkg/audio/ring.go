package audio

import "sync"

// RingBuffer is a fixed-capacity circular buffer of PCM samples sitting
// between the capture goroutine and the turn detector. Writes never block:
// when the buffer is full the oldest unread samples are overwritten, which is
// the designed backpressure policy — capture must never stall, so stale audio
// is sacrificed first.
//
// All methods are safe for concurrent use.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []int16
	head    int   // index of the oldest unread sample
	size    int   // number of unread samples
	dropped int64 // total samples overwritten before being read
}

// NewRingBuffer creates a buffer holding at most capacity samples.
// A capacity of seconds×sampleRate retains that many seconds of mono audio.
// NewRingBuffer panics if capacity is not positive; the capacity is fixed at
// configuration time and never changes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic("audio: ring buffer capacity must be positive")
	}
	return &RingBuffer{buf: make([]int16, capacity)}
}

// Write appends samples, overwriting the oldest unread samples when full.
// It never blocks and never fails.
func (r *RingBuffer) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// If the input alone exceeds capacity only its tail survives.
	if len(samples) > len(r.buf) {
		r.dropped += int64(r.size + len(samples) - len(r.buf))
		copy(r.buf, samples[len(samples)-len(r.buf):])
		r.head = 0
		r.size = len(r.buf)
		return
	}

	tail := (r.head + r.size) % len(r.buf)
	for _, s := range samples {
		r.buf[tail] = s
		tail = (tail + 1) % len(r.buf)
		if r.size == len(r.buf) {
			// Overwrote the oldest unread sample.
			r.head = (r.head + 1) % len(r.buf)
			r.dropped++
		} else {
			r.size++
		}
	}
}

// ReadAvailable returns and clears all buffered samples since the last read,
// in capture order. It returns nil when the buffer is empty.
func (r *RingBuffer) ReadAvailable() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}
	out := make([]int16, r.size)
	first := len(r.buf) - r.head
	if first >= r.size {
		copy(out, r.buf[r.head:r.head+r.size])
	} else {
		copy(out, r.buf[r.head:])
		copy(out[first:], r.buf[:r.size-first])
	}
	r.head = 0
	r.size = 0
	return out
}

// Len returns the number of unread samples currently buffered.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the fixed sample capacity.
func (r *RingBuffer) Capacity() int {
	return len(r.buf)
}

// Dropped returns the total number of samples overwritten before they could
// be read. Useful for surfacing sustained consumer lag in metrics.
func (r *RingBuffer) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
