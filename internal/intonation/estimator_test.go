// SPDX-License-Identifier: MIT
package intonation

import (
	"math"
	"testing"

	"tuner/internal/pitch"
	"tuner/internal/scale"
)

func tunableBlock(hz float64, idx int) *pitch.Block {
	b := pitch.NewBlock(nil, idx, float64(idx)*0.1, 44100)
	b.Tunable = true
	b.Pitch = hz
	return b
}

func newTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(10)
	if err != nil {
		t.Fatalf("NewEstimator failed: %v", err)
	}
	return e
}

func TestCentsDifference(t *testing.T) {
	tests := []struct {
		desc string
		x, y float64
		want float64
	}{
		{"unison", 440, 440, 0},
		{"octave up", 440, 880, 1200},
		{"octave down", 440, 220, -1200},
		{"equal-tempered semitone", 440, 440 * math.Pow(2, 1.0/12), 100},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := CentsDifference(tt.x, tt.y); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CentsDifference(%g, %g) = %g, want %g", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestProcessReferencePitch(t *testing.T) {
	e := newTestEstimator(t)

	b := tunableBlock(440, 0)
	e.Process(b)

	if b.Note != 9 {
		t.Errorf("note = %d, want 9 (A)", b.Note)
	}
	if math.Abs(b.Error) > 1e-9 {
		t.Errorf("error = %g cents, want 0", b.Error)
	}
	if math.Abs(b.ErrorAdj) > 1e-9 {
		t.Errorf("smoothed error = %g cents, want 0", b.ErrorAdj)
	}
	if e.Note != b.Note || e.Error != b.Error {
		t.Error("estimator state not mirrored onto block")
	}
}

func TestProcessSharpAndFlat(t *testing.T) {
	e := newTestEstimator(t)

	sharp := tunableBlock(445, 0)
	e.Process(sharp)
	wantSharp := CentsDifference(440, 445)
	if sharp.Note != 9 || math.Abs(sharp.Error-wantSharp) > 1e-9 {
		t.Errorf("445 Hz: note = %d, error = %g, want note 9, error %g",
			sharp.Note, sharp.Error, wantSharp)
	}

	flat := tunableBlock(435, 1)
	e.Process(flat)
	wantFlat := CentsDifference(440, 435)
	if flat.Note != 9 || math.Abs(flat.Error-wantFlat) > 1e-9 {
		t.Errorf("435 Hz: note = %d, error = %g, want note 9, error %g",
			flat.Note, flat.Error, wantFlat)
	}
	if flat.Error >= 0 {
		t.Error("a flat pitch must yield a negative error")
	}
}

func TestProcessOctaveEquivalence(t *testing.T) {
	e := newTestEstimator(t)

	for _, hz := range []float64{110, 220, 880, 1760} {
		b := tunableBlock(hz, 0)
		e.Process(b)
		if b.Note != 9 {
			t.Errorf("%g Hz: note = %d, want 9 in every octave", hz, b.Note)
		}
		if math.Abs(b.Error) > 1e-9 {
			t.Errorf("%g Hz: error = %g, want 0", hz, b.Error)
		}
	}
}

func TestProcessWraparound(t *testing.T) {
	s, err := scale.New(scale.Definition{
		Name:      "two-tone",
		Notes:     map[int]float64{0: 0, 1: 1150},
		NoteNames: map[int]string{0: "do", 1: "ti"},
	})
	if err != nil {
		t.Fatalf("building test scale: %v", err)
	}

	e := newTestEstimator(t)
	e.SetScale(s)
	if err := e.SetTuningNote(0); err != nil {
		t.Fatalf("SetTuningNote: %v", err)
	}
	if err := e.SetTuningPitch(100); err != nil {
		t.Fatalf("SetTuningPitch: %v", err)
	}

	// 1190 cents above the tonic: 10 cents from the next-octave tonic,
	// 40 from the top degree. Must wrap to degree 0 with negative error.
	b := tunableBlock(100*math.Pow(2, 1190.0/1200), 0)
	e.Process(b)

	if b.Note != 0 {
		t.Errorf("note = %d, want 0 after wraparound", b.Note)
	}
	if math.Abs(b.Error-(-10)) > 1e-6 {
		t.Errorf("error = %g cents, want -10", b.Error)
	}
}

func TestNoteChangeClearsHistory(t *testing.T) {
	e := newTestEstimator(t)

	for i := 0; i < 5; i++ {
		e.Process(tunableBlock(440, i))
	}
	if got := e.HistoryLen(); got != 5 {
		t.Fatalf("history length = %d, want 5", got)
	}

	// A semitone up is a different note: smoothing must restart.
	bFlip := tunableBlock(440*math.Pow(2, 1.0/12), 5)
	e.Process(bFlip)
	if bFlip.Note != 10 {
		t.Fatalf("note = %d, want 10 (A#)", bFlip.Note)
	}
	if got := e.HistoryLen(); got != 1 {
		t.Errorf("history length after note change = %d, want 1", got)
	}
	if bFlip.ErrorAdj != bFlip.Error {
		t.Errorf("smoothed error %g should equal raw error %g right after a note change",
			bFlip.ErrorAdj, bFlip.Error)
	}
}

func TestSmoothedError(t *testing.T) {
	e := newTestEstimator(t)

	sharp := 440 * math.Pow(2, 10.0/1200) // +10 cents
	flat := 440 * math.Pow(2, -10.0/1200) // -10 cents

	e.Process(tunableBlock(sharp, 0))
	b := tunableBlock(flat, 1)
	e.Process(b)

	// Mean of +10 and -10.
	if math.Abs(b.ErrorAdj) > 1e-6 {
		t.Errorf("smoothed error = %g cents, want ~0", b.ErrorAdj)
	}
	if math.Abs(b.Error-(-10)) > 1e-6 {
		t.Errorf("raw error = %g cents, want -10", b.Error)
	}
}

func TestUntunableResets(t *testing.T) {
	e := newTestEstimator(t)

	e.Process(tunableBlock(440, 0))
	if e.Note != 9 {
		t.Fatalf("note = %d, want 9 before reset", e.Note)
	}

	silent := pitch.NewBlock(nil, 1, 0.1, 44100)
	e.Process(silent)

	if e.Note != -1 || silent.Note != -1 {
		t.Errorf("note = %d/%d, want -1 after untunable block", e.Note, silent.Note)
	}
	if e.HistoryLen() != 0 {
		t.Errorf("history length = %d, want 0 after untunable block", e.HistoryLen())
	}
	if silent.Error != 0 || silent.ErrorAdj != 0 {
		t.Errorf("errors = %g/%g, want 0/0 after reset", silent.Error, silent.ErrorAdj)
	}
}

func TestSetters(t *testing.T) {
	e := newTestEstimator(t)

	if err := e.SetTuningPitch(0); err == nil {
		t.Error("SetTuningPitch accepted zero")
	}
	if err := e.SetTuningPitch(-440); err == nil {
		t.Error("SetTuningPitch accepted a negative frequency")
	}
	if err := e.SetTuningNote(99); err == nil {
		t.Error("SetTuningNote accepted an out-of-range degree")
	}
	if err := e.SetTuningNote(3); err != nil {
		t.Errorf("SetTuningNote(3) failed: %v", err)
	}

	// Swapping to a smaller scale clamps an out-of-range tuning note.
	small, err := scale.New(scale.Definition{
		Name:      "tiny",
		Notes:     map[int]float64{0: 0, 1: 700},
		NoteNames: map[int]string{0: "lo", 1: "hi"},
	})
	if err != nil {
		t.Fatalf("building test scale: %v", err)
	}
	if err := e.SetTuningNote(9); err != nil {
		t.Fatalf("SetTuningNote(9): %v", err)
	}
	e.SetScale(small)
	if e.TuningNote() != 0 {
		t.Errorf("tuning note = %d, want clamped to 0", e.TuningNote())
	}
}

func TestNewEstimatorValidation(t *testing.T) {
	if _, err := NewEstimator(0); err == nil {
		t.Error("NewEstimator accepted zero history length")
	}
	if _, err := NewEstimator(-3); err == nil {
		t.Error("NewEstimator accepted negative history length")
	}
}
