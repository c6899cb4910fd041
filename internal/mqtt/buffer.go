package mqtt

import "log"

// bufferedMsg is a publish held back until the broker is reachable.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the newest messages published while offline, oldest
// first. Overflow evicts from the front and is counted until the next drain.
// Callers serialize access.
type ringBuffer struct {
	slots   []bufferedMsg
	first   int // index of the oldest message
	size    int
	evicted int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{slots: make([]bufferedMsg, max(capacity, 1))}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	n := len(r.slots)
	if r.size < n {
		r.slots[(r.first+r.size)%n] = msg
		r.size++
		return
	}

	if r.evicted == 0 {
		log.Printf("mqtt: offline buffer full at %d, evicting oldest", n)
	}
	r.evicted++
	r.slots[r.first] = msg
	r.first = (r.first + 1) % n
}

// drainAll empties the buffer, returning its messages oldest first and the
// number evicted since the previous drain.
func (r *ringBuffer) drainAll() ([]bufferedMsg, int) {
	evicted := r.evicted
	r.evicted = 0
	if r.size == 0 {
		return nil, evicted
	}

	out := make([]bufferedMsg, 0, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.first + i) % len(r.slots)
		out = append(out, r.slots[idx])
		r.slots[idx] = bufferedMsg{}
	}
	r.first, r.size = 0, 0
	return out, evicted
}

func (r *ringBuffer) len() int {
	return r.size
}
