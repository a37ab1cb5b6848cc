// SPDX-License-Identifier: MIT
/*
Package intonation maps an estimated pitch onto the nearest note of the
active scale and tracks the signed cents error against it, smoothed over
a short rolling history. Like the pitch estimator it is driven strictly
sequentially by the analysis loop.
*/
package intonation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"tuner/internal/buffer"
	"tuner/internal/pitch"
	"tuner/internal/scale"
)

const centsPerOctave = 1200.0

// CentsDifference returns the displacement from x to y in cents,
// negative when y is below x.
func CentsDifference(x, y float64) float64 {
	return centsPerOctave * math.Log2(y/x)
}

// Estimator matches pitches to scale degrees. The active scale, tuning
// note, and tuning pitch are swappable at runtime between Process calls.
type Estimator struct {
	scale   *scale.Scale
	tnNote  int     // tuning note degree within the scale
	tnPitch float64 // reference frequency of the tuning note, Hz

	// Last results, mirrored onto each processed block.
	Note     int
	Error    float64
	ErrorAdj float64

	noteBuf     *buffer.Buffer[int]
	errorBuf    *buffer.Buffer[float64]
	errorAdjBuf *buffer.Buffer[float64]
}

// NewEstimator builds an estimator with the standard twelve-tone scale,
// tuning note A (degree 9) and tuning pitch 440 Hz.
func NewEstimator(histLen int) (*Estimator, error) {
	if histLen <= 0 {
		return nil, fmt.Errorf("intonation: history length must be positive, got %d", histLen)
	}
	noteBuf, err := buffer.New[int](histLen, 1)
	if err != nil {
		return nil, err
	}
	errorBuf, err := buffer.New[float64](histLen, 1)
	if err != nil {
		return nil, err
	}
	errorAdjBuf, err := buffer.New[float64](histLen, 1)
	if err != nil {
		return nil, err
	}
	return &Estimator{
		scale:       scale.EDO12(),
		tnNote:      9,
		tnPitch:     440.0,
		Note:        -1,
		noteBuf:     noteBuf,
		errorBuf:    errorBuf,
		errorAdjBuf: errorAdjBuf,
	}, nil
}

// Scale returns the active tuning system.
func (e *Estimator) Scale() *scale.Scale { return e.scale }

// SetScale swaps the active tuning system wholesale and clamps the
// tuning note into the new scale's range.
func (e *Estimator) SetScale(s *scale.Scale) {
	e.scale = s
	if e.tnNote >= s.Len() {
		e.tnNote = 0
	}
}

// TuningNote returns the degree of the tuning note within the scale.
func (e *Estimator) TuningNote() int { return e.tnNote }

// SetTuningNote selects the scale degree the tuning pitch refers to.
func (e *Estimator) SetTuningNote(degree int) error {
	if _, err := e.scale.Note(degree); err != nil {
		return err
	}
	e.tnNote = degree
	return nil
}

// TuningPitch returns the reference frequency in Hz.
func (e *Estimator) TuningPitch() float64 { return e.tnPitch }

// SetTuningPitch sets the reference frequency in Hz.
func (e *Estimator) SetTuningPitch(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("intonation: tuning pitch must be positive, got %g", hz)
	}
	e.tnPitch = hz
	return nil
}

// HistoryLen returns the number of entries in the raw-error history.
// Resets to zero on an untunable block and to one right after a note
// change.
func (e *Estimator) HistoryLen() int { return e.errorBuf.Len() }

// Process matches the block's pitch to the nearest scale degree and
// computes raw and smoothed cents error. An untunable block resets all
// state so the tuning display never shows stale data.
func (e *Estimator) Process(b *pitch.Block) {
	if !b.Tunable {
		e.reset(b)
		return
	}

	tnCents := e.scale.Cents()[e.tnNote]

	// Distance from the tonic in [0, 1200), matching the scale format.
	dist := CentsDifference(e.tnPitch, b.Pitch) + tnCents
	dist = math.Mod(dist, centsPerOctave)
	if dist < 0 {
		dist += centsPerOctave
	}

	cents := e.scale.Cents()
	note := 0
	for i, c := range cents {
		if math.Abs(dist-c) < math.Abs(dist-cents[note]) {
			note = i
		}
	}
	var errCents float64
	last := len(cents) - 1
	if note == last && math.Abs(dist-centsPerOctave) < math.Abs(dist-cents[last]) {
		// Closer to the next-octave tonic than to the top degree:
		// wrap to degree 0 with a negative error.
		note = 0
		errCents = dist - centsPerOctave
	} else {
		errCents = dist - cents[note]
	}

	// No carry-over smoothing across note changes.
	if prev, ok := e.lastNote(); ok && prev != note {
		e.clearHistory()
	}

	_ = e.noteBuf.Append(note)
	_ = e.errorBuf.Append(errCents)

	errAdj := stat.Mean(e.errorBuf.Read(), nil)
	_ = e.errorAdjBuf.Append(errAdj)

	e.Note = note
	e.Error = errCents
	e.ErrorAdj = errAdj

	b.Note = note
	b.Error = errCents
	b.ErrorAdj = errAdj
}

func (e *Estimator) lastNote() (int, bool) {
	notes := e.noteBuf.Read()
	if len(notes) == 0 {
		return 0, false
	}
	return notes[len(notes)-1], true
}

func (e *Estimator) clearHistory() {
	e.noteBuf.Clear()
	e.errorBuf.Clear()
	e.errorAdjBuf.Clear()
}

func (e *Estimator) reset(b *pitch.Block) {
	e.Note = -1
	e.Error = 0
	e.ErrorAdj = 0
	e.clearHistory()

	b.Note = -1
	b.Error = 0
	b.ErrorAdj = 0
}
