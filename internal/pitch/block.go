// SPDX-License-Identifier: MIT
package pitch

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Block is one analysis cycle's snapshot of audio. The identity fields
// (Data, Index, Timestamp, SampleRate) are set once at construction; the
// remaining fields are filled in by the pitch and intonation estimators
// as the block moves down the pipeline. The driver owns a block for the
// duration of its cycle; estimators mutate it but keep no reference.
type Block struct {
	// Identity, immutable after construction.
	Data       []float64 // mono samples, oldest first
	Index      int       // monotonically increasing cycle counter
	Timestamp  float64   // seconds since the driver clock started
	SampleRate float64

	// Preprocessing.
	RMS float64

	// Pitch estimation.
	D         []float64 // difference function per lag
	DN        []float64 // cumulative-mean-normalized difference per lag
	ChosenLag int
	Score     float64 // DN value at the chosen lag
	Tunable   bool
	Pitch     float64 // Hz, -1 when not tunable

	// Intonation estimation.
	Note     int     // matched scale degree, -1 when none
	Error    float64 // signed cents error against the matched note
	ErrorAdj float64 // smoothed cents error
}

// NewBlock builds a block around one buffer's worth of mono samples and
// computes its RMS.
func NewBlock(data []float64, index int, timestamp, sampleRate float64) *Block {
	b := &Block{
		Data:       data,
		Index:      index,
		Timestamp:  timestamp,
		SampleRate: sampleRate,
		Pitch:      -1,
		Note:       -1,
	}
	if len(data) > 0 {
		b.RMS = math.Sqrt(floats.Dot(data, data) / float64(len(data)))
	}
	return b
}

func (b *Block) String() string {
	if !b.Tunable {
		return fmt.Sprintf("<Block(%d): timestamp=%.2fs, untuned>", b.Index, b.Timestamp)
	}
	return fmt.Sprintf("<Block(%d): timestamp=%.2fs, pitch=%.2f Hz>", b.Index, b.Timestamp, b.Pitch)
}
