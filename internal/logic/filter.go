package logic

// DefaultHistorySize is the number of samples in the smoothing window.
const DefaultHistorySize = 10

// Filter is a fixed-capacity moving average over raw pressure readings.
// The window is append-then-average: after a Clear the mean is taken over
// however many samples have arrived, never zero-padded.
type Filter struct {
	capacity int
	values   []float64
}

// NewFilter creates a filter holding at most capacity samples. A capacity
// below 1 is treated as 1.
func NewFilter(capacity int) *Filter {
	if capacity < 1 {
		capacity = 1
	}
	return &Filter{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
	}
}

// Smooth appends raw to the window, evicting the oldest sample on overflow,
// and returns the mean of the window.
func (f *Filter) Smooth(raw float64) float64 {
	if len(f.values) == f.capacity {
		copy(f.values, f.values[1:])
		f.values = f.values[:len(f.values)-1]
	}
	f.values = append(f.values, raw)
	return f.Mean()
}

// Mean returns the average of the window, or 0 when empty.
func (f *Filter) Mean() float64 {
	if len(f.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range f.values {
		sum += v
	}
	return sum / float64(len(f.values))
}

// Clear empties the window.
func (f *Filter) Clear() {
	f.values = f.values[:0]
}

func (f *Filter) Len() int      { return len(f.values) }
func (f *Filter) Capacity() int { return f.capacity }
func (f *Filter) Full() bool    { return len(f.values) == f.capacity }

// Values returns a copy of the window, oldest first.
func (f *Filter) Values() []float64 {
	out := make([]float64, len(f.values))
	copy(out, f.values)
	return out
}
