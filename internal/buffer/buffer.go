// SPDX-License-Identifier: MIT
/*
Package buffer implements a thread-safe circular buffer over fixed-width
numeric rows. It is tuned for many small writes relative to reads: reading
is non-destructive and returns a cached contiguous snapshot that is only
rebuilt after a write has invalidated it. The same primitive doubles as a
bounded scalar history (width 1) for estimator smoothing.
*/
package buffer

import (
	"fmt"
	"math"
	"sync"
)

// Numeric covers the element types the buffer can hold.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Buffer is a fixed-capacity ring of rows, each row `width` elements wide.
// Writes overwrite the oldest rows once capacity is reached. All methods
// are safe for concurrent use.
type Buffer[T Numeric] struct {
	mu sync.Mutex

	data     []T // capacity*width elements, flat row-major storage
	capacity int // rows
	width    int // elements per row

	head int // next write position, in rows
	full bool

	padded bool // report capacity rows even when not full
	fill   T

	// Snapshot from the last Read. Staleness is represented by nil;
	// every Write and Clear drops it.
	cached []T
}

// New creates a buffer of capacity rows, each width elements wide. Rows
// that have never been written are not reported by Read.
func New[T Numeric](capacity, width int) (*Buffer[T], error) {
	if capacity <= 0 || width <= 0 {
		return nil, fmt.Errorf("buffer: invalid shape %dx%d", capacity, width)
	}
	return &Buffer[T]{
		data:     make([]T, capacity*width),
		capacity: capacity,
		width:    width,
	}, nil
}

// NewPadded creates a buffer whose Read always returns the full capacity,
// with unwritten rows holding fill. Requesting a NaN fill for an integral
// element type is a configuration error.
func NewPadded[T Numeric](capacity, width int, fill float64) (*Buffer[T], error) {
	if math.IsNaN(fill) && isIntegral[T]() {
		return nil, fmt.Errorf("buffer: cannot pad integral elements with NaN")
	}
	b, err := New[T](capacity, width)
	if err != nil {
		return nil, err
	}
	b.padded = true
	b.fill = T(fill)
	for i := range b.data {
		b.data[i] = b.fill
	}
	return b, nil
}

// isIntegral reports whether T truncates fractional values.
func isIntegral[T Numeric]() bool {
	half := 0.5
	return T(half) == T(0)
}

// Capacity returns the maximum number of retained rows.
func (b *Buffer[T]) Capacity() int { return b.capacity }

// Width returns the number of elements per row.
func (b *Buffer[T]) Width() int { return b.width }

// Full reports whether the buffer has wrapped at least once.
func (b *Buffer[T]) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.full
}

// Len returns the number of rows Read will report.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full || b.padded {
		return b.capacity
	}
	return b.head
}

// Write appends the given rows, overwriting the oldest data once capacity
// is reached. The chunk length must be a multiple of the row width. Runs
// in O(len(chunk)) and never reallocates the backing array.
func (b *Buffer[T]) Write(chunk []T) error {
	if len(chunk)%b.width != 0 {
		return fmt.Errorf("buffer: chunk length %d not a multiple of row width %d", len(chunk), b.width)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.write(chunk)
	b.cached = nil
	return nil
}

// Append writes a single scalar value. Only valid for width-1 buffers;
// it is the history-keeping convenience used by the estimators.
func (b *Buffer[T]) Append(v T) error {
	return b.Write([]T{v})
}

// Read returns the retained rows as one contiguous slice, oldest first.
// The result is cached until the next Write or Clear; callers must treat
// it as read-only.
func (b *Buffer[T]) Read() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached == nil {
		b.cached = b.snapshot()
	}
	return b.cached
}

// Clear resets the buffer to its initial empty (or fully padded) state.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	if b.padded {
		zero = b.fill
	}
	for i := range b.data {
		b.data[i] = zero
	}
	b.head = 0
	b.full = false
	b.cached = nil
}

func (b *Buffer[T]) write(chunk []T) {
	rows := len(chunk) / b.width
	w := b.width

	// Oversized chunk: the buffer becomes exactly the chunk's tail.
	if rows >= b.capacity {
		copy(b.data, chunk[(rows-b.capacity)*w:])
		b.head = 0
		b.full = true
		return
	}

	// Chunk fits before the wrap point.
	free := b.capacity - b.head
	if rows <= free {
		copy(b.data[b.head*w:], chunk)
		b.head += rows
		if b.head == b.capacity {
			b.head = 0
			b.full = true
		}
		return
	}

	// Two-part copy: fill to the end, continue from the start.
	copy(b.data[b.head*w:], chunk[:free*w])
	copy(b.data, chunk[free*w:])
	b.head = rows - free
	b.full = true
}

func (b *Buffer[T]) snapshot() []T {
	w := b.width

	if b.full {
		out := make([]T, len(b.data))
		if b.head == 0 {
			copy(out, b.data)
			return out
		}
		// Rotate so the oldest row comes first.
		n := copy(out, b.data[b.head*w:])
		copy(out[n:], b.data[:b.head*w])
		return out
	}

	if !b.padded {
		out := make([]T, b.head*w)
		copy(out, b.data[:b.head*w])
		return out
	}
	out := make([]T, len(b.data))
	copy(out, b.data)
	return out
}
