// SPDX-License-Identifier: MIT
package buffer

import (
	"math"
	"sync"
	"testing"
)

func mustWrite[T Numeric](t *testing.T, b *Buffer[T], chunk []T) {
	t.Helper()
	if err := b.Write(chunk); err != nil {
		t.Fatalf("Write(%v): %v", chunk, err)
	}
}

func equalSlices[T Numeric](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWriteReadOrder(t *testing.T) {
	b, err := New[int](5, 1)
	if err != nil {
		t.Fatal(err)
	}

	mustWrite(t, b, []int{0, 1, 2})
	if got := b.Read(); !equalSlices(got, []int{0, 1, 2}) {
		t.Errorf("partial read: got %v, want [0 1 2]", got)
	}
	if b.Len() != 3 {
		t.Errorf("Len after partial write: got %d, want 3", b.Len())
	}

	mustWrite(t, b, []int{3, 4, 5, 6})
	if got := b.Read(); !equalSlices(got, []int{2, 3, 4, 5, 6}) {
		t.Errorf("wrapped read: got %v, want [2 3 4 5 6]", got)
	}
	if b.Len() != 5 || !b.Full() {
		t.Errorf("Len/Full after wrap: got %d/%v, want 5/true", b.Len(), b.Full())
	}
}

func TestPaddedRead(t *testing.T) {
	b, err := NewPadded[int](5, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	mustWrite(t, b, []int{0, 1, 2})
	if got := b.Read(); !equalSlices(got, []int{0, 1, 2, 0, 0}) {
		t.Errorf("padded read: got %v, want [0 1 2 0 0]", got)
	}
	if b.Len() != 5 {
		t.Errorf("padded Len: got %d, want 5", b.Len())
	}

	mustWrite(t, b, []int{3, 4, 5, 6})
	if got := b.Read(); !equalSlices(got, []int{2, 3, 4, 5, 6}) {
		t.Errorf("padded wrapped read: got %v, want [2 3 4 5 6]", got)
	}
}

func TestOversizedWriteKeepsTail(t *testing.T) {
	b, err := New[int](3, 1)
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, b, []int{9})
	mustWrite(t, b, []int{0, 1, 2, 3, 4, 5, 6})
	if got := b.Read(); !equalSlices(got, []int{4, 5, 6}) {
		t.Errorf("oversized write: got %v, want [4 5 6]", got)
	}
}

func TestExactCapacityWriteWraps(t *testing.T) {
	b, err := New[int](4, 1)
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, b, []int{1, 2, 3, 4})
	if !b.Full() {
		t.Error("buffer should be full after exact-capacity write")
	}
	if got := b.Read(); !equalSlices(got, []int{1, 2, 3, 4}) {
		t.Errorf("exact write: got %v, want [1 2 3 4]", got)
	}
}

func TestReadIsCachedUntilWrite(t *testing.T) {
	b, err := New[float64](4, 1)
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, b, []float64{1, 2})

	first := b.Read()
	second := b.Read()
	if &first[0] != &second[0] {
		t.Error("consecutive reads should return the cached snapshot")
	}

	mustWrite(t, b, []float64{3})
	third := b.Read()
	if !equalSlices(third, []float64{1, 2, 3}) {
		t.Errorf("read after write: got %v, want [1 2 3]", third)
	}
}

func TestMultiChannelRows(t *testing.T) {
	b, err := New[float32](3, 2)
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, b, []float32{1, 10, 2, 20})
	mustWrite(t, b, []float32{3, 30, 4, 40})
	want := []float32{2, 20, 3, 30, 4, 40}
	if got := b.Read(); !equalSlices(got, want) {
		t.Errorf("row-wise wrap: got %v, want %v", got, want)
	}

	if err := b.Write([]float32{1, 2, 3}); err == nil {
		t.Error("expected error for chunk not a multiple of row width")
	}
}

func TestClear(t *testing.T) {
	b, err := NewPadded[float64](3, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, b, []float64{1, 2, 3, 4})
	b.Clear()
	if b.Full() {
		t.Error("Clear should reset the full flag")
	}
	if got := b.Read(); !equalSlices(got, []float64{0, 0, 0}) {
		t.Errorf("read after Clear: got %v, want zeros", got)
	}
}

func TestNaNFillRejectedForIntegers(t *testing.T) {
	if _, err := NewPadded[int32](4, 1, math.NaN()); err == nil {
		t.Error("expected configuration error for NaN fill on int32 buffer")
	}
	if _, err := NewPadded[float64](4, 1, math.NaN()); err != nil {
		t.Errorf("NaN fill on float64 buffer should be allowed, got %v", err)
	}
}

func TestInvalidShape(t *testing.T) {
	if _, err := New[int](0, 1); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := New[int](4, 0); err == nil {
		t.Error("expected error for zero width")
	}
}

// Concurrent writer/reader smoke test mirroring the capture-callback vs
// analysis-tick access pattern. Validated under -race.
func TestConcurrentWriteRead(t *testing.T) {
	b, err := NewPadded[float32](256, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		chunk := make([]float32, 64)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			for j := range chunk {
				chunk[j] = float32(i)
			}
			_ = b.Write(chunk)
		}
	}()

	for i := 0; i < 200; i++ {
		got := b.Read()
		if len(got) != 256 {
			t.Errorf("concurrent read length: got %d, want 256", len(got))
			break
		}
	}
	close(stop)
	wg.Wait()
}

func BenchmarkWrite(b *testing.B) {
	buf, err := NewPadded[float32](4410, 1, 0)
	if err != nil {
		b.Fatal(err)
	}
	chunk := make([]float32, 256)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = buf.Write(chunk)
	}
}

func BenchmarkReadCached(b *testing.B) {
	buf, err := NewPadded[float32](4410, 1, 0)
	if err != nil {
		b.Fatal(err)
	}
	_ = buf.Write(make([]float32, 4410))
	_ = buf.Read() // prime the cache

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = buf.Read()
	}
}
