package fall

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientHistory is returned by RecentStats when the window holds
// fewer samples than requested. Callers treat it as "not stationary".
var ErrInsufficientHistory = errors.New("fall: insufficient sample history")

// Stats are rolling statistics over the most recent samples.
type Stats struct {
	Mean   float64
	StdDev float64 // population standard deviation
	N      int
}

// Buffer is a fixed-capacity FIFO window of acceleration magnitudes.
// Pushing into a full buffer evicts the oldest sample. All storage is
// allocated up front.
type Buffer struct {
	data    []float64
	pos     int
	full    bool
	scratch []float64
}

// NewBuffer creates a Buffer holding up to capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		data:    make([]float64, capacity),
		scratch: make([]float64, capacity),
	}
}

// Push appends a magnitude, evicting the oldest one when full.
func (b *Buffer) Push(magnitude float64) {
	b.data[b.pos] = magnitude
	b.pos++
	if b.pos >= len(b.data) {
		b.pos = 0
		b.full = true
	}
}

// Len returns the number of samples currently held.
func (b *Buffer) Len() int {
	if b.full {
		return len(b.data)
	}
	return b.pos
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Samples returns a copy of the window, oldest first.
func (b *Buffer) Samples() []float64 {
	out := make([]float64, b.Len())
	b.copyRecent(out)
	return out
}

// RecentStats computes mean and population standard deviation over the
// last n samples. It returns ErrInsufficientHistory if fewer than n exist.
func (b *Buffer) RecentStats(n int) (Stats, error) {
	if n <= 0 || b.Len() < n {
		return Stats{}, ErrInsufficientHistory
	}
	recent := b.scratch[:n]
	b.copyRecent(recent)
	mean, std := stat.PopMeanStdDev(recent, nil)
	return Stats{Mean: mean, StdDev: std, N: n}, nil
}

// copyRecent fills dst with the newest len(dst) samples in arrival order.
func (b *Buffer) copyRecent(dst []float64) {
	n := len(dst)
	capacity := len(b.data)
	start := b.pos - n
	if start < 0 {
		start += capacity
	}
	if start+n <= capacity {
		copy(dst, b.data[start:start+n])
		return
	}
	k := copy(dst, b.data[start:])
	copy(dst[k:], b.data[:n-k])
}
