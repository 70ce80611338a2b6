package agent

// RingBuffer is a fixed-capacity window of float64 samples. Push evicts the
// oldest sample once full. The running sum is kept incrementally.
type RingBuffer struct {
	buf  []float64
	head int // index of the oldest sample
	n    int
	sum  float64
}

// NewRingBuffer creates a window holding up to capacity samples.
// Capacity below one is treated as one.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]float64, capacity)}
}

// Push appends v. When the buffer is full it returns the evicted sample.
func (r *RingBuffer) Push(v float64) (evicted float64, ok bool) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		r.sum += v
		return 0, false
	}
	evicted = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.sum += v - evicted
	return evicted, true
}

func (r *RingBuffer) Len() int { return r.n }

func (r *RingBuffer) Cap() int { return len(r.buf) }

func (r *RingBuffer) Full() bool { return r.n == len(r.buf) }

func (r *RingBuffer) Sum() float64 { return r.sum }

// Mean returns the average of the held samples, or zero when empty.
func (r *RingBuffer) Mean() float64 {
	if r.n == 0 {
		return 0
	}
	return r.sum / float64(r.n)
}

// Values returns the samples oldest first.
func (r *RingBuffer) Values() []float64 {
	out := make([]float64, r.n)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
