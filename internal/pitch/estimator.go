// SPDX-License-Identifier: MIT
/*
Package pitch estimates the fundamental pitch of a sustained tone using
the YIN difference function with an onset/offset tracking state machine
on top. The estimator is driven strictly sequentially by the analysis
loop and owns no locking; see the driver for the concurrency contract.
*/
package pitch

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"tuner/internal/buffer"
	applog "tuner/internal/log"
)

// minLagSeparation is the minimum distance, in lags, between candidate
// minima of the normalized difference function.
const minLagSeparation = 5

// lowestSearchHz bounds the computed lag set: lags are evaluated for
// periods up to 1/40 s regardless of the configured search range.
const lowestSearchHz = 40.0

// Config carries the user-tunable parameters of the estimator. Threshold
// fields map onto the corresponding Estimator fields, which may be
// adjusted between Process calls at runtime.
type Config struct {
	SampleRate float64

	// Search window for valid pitches, in Hz.
	FMin float64
	FMax float64

	// MinThresh admits candidate minima while tracking is in progress;
	// AbsThresh is the tighter score below which a candidate is taken as
	// confident outright.
	MinThresh float64
	AbsThresh float64

	// OnsetThresh is the stricter score a candidate must cross before a
	// new onset is declared. OffsetThresh2 guards the harmonic-correction
	// branch: a decayed reference whose current score exceeds it forces
	// an offset. OffsetThresh is kept as a tunable alongside them.
	OnsetThresh   float64
	OffsetThresh  float64
	OffsetThresh2 float64

	// IntegerThresh is the tolerance, in octaves, within which the log2
	// ratio of candidate to reference lag counts as an integer multiple.
	IntegerThresh float64

	// Sub-sample peak refinement: half-width of the interpolation
	// neighborhood in lags, and the upsampling factor applied to it.
	InterpHalfWidth   int
	InterpUpsampleFac int

	// HistLen bounds the rolling (lag, score, pitch) history.
	HistLen int
}

// DefaultConfig returns the estimator defaults for the given sample rate.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:        sampleRate,
		FMin:              60.0,
		FMax:              1500.0,
		MinThresh:         0.3,
		AbsThresh:         0.1,
		OnsetThresh:       0.15,
		OffsetThresh:      0.35,
		OffsetThresh2:     0.45,
		IntegerThresh:     0.1,
		InterpHalfWidth:   10,
		InterpUpsampleFac: 20,
		HistLen:           20,
	}
}

// Estimator computes the YIN difference function over a block, tracks
// onsets and offsets of a sustained tone, and refines the chosen lag to
// sub-sample accuracy. Threshold fields are public and may be mutated
// between Process calls; the frequency search range changes through
// SetRange because it derives the lag cutoffs.
type Estimator struct {
	sampleRate float64
	fmin       float64
	fmax       float64

	MinThresh     float64
	AbsThresh     float64
	OnsetThresh   float64
	OffsetThresh  float64
	OffsetThresh2 float64
	IntegerThresh float64

	InterpHalfWidth   int
	InterpUpsampleFac int

	// Derived from sampleRate and the search range.
	numLags int
	lagMin  int
	lagMax  int

	// Onset tracking state.
	onset      bool
	onsetLag   int
	onsetTime  float64
	offsetTime float64

	// Bounded history of accepted estimates.
	lagHist   *buffer.Buffer[int]
	scoreHist *buffer.Buffer[float64]
	pitchHist *buffer.Buffer[float64]
}

// NewEstimator validates the configuration and builds an estimator.
func NewEstimator(cfg Config) (*Estimator, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("pitch: sample rate must be positive, got %g", cfg.SampleRate)
	}
	if cfg.FMin <= 0 || cfg.FMax <= cfg.FMin {
		return nil, fmt.Errorf("pitch: invalid search range [%g, %g] Hz", cfg.FMin, cfg.FMax)
	}
	if cfg.HistLen <= 0 {
		return nil, fmt.Errorf("pitch: history length must be positive, got %d", cfg.HistLen)
	}
	if cfg.InterpHalfWidth < 1 || cfg.InterpUpsampleFac < 1 {
		return nil, fmt.Errorf("pitch: invalid interpolation parameters %d/%d", cfg.InterpHalfWidth, cfg.InterpUpsampleFac)
	}

	lagHist, err := buffer.New[int](cfg.HistLen, 1)
	if err != nil {
		return nil, err
	}
	scoreHist, err := buffer.New[float64](cfg.HistLen, 1)
	if err != nil {
		return nil, err
	}
	pitchHist, err := buffer.New[float64](cfg.HistLen, 1)
	if err != nil {
		return nil, err
	}

	e := &Estimator{
		sampleRate:        cfg.SampleRate,
		MinThresh:         cfg.MinThresh,
		AbsThresh:         cfg.AbsThresh,
		OnsetThresh:       cfg.OnsetThresh,
		OffsetThresh:      cfg.OffsetThresh,
		OffsetThresh2:     cfg.OffsetThresh2,
		IntegerThresh:     cfg.IntegerThresh,
		InterpHalfWidth:   cfg.InterpHalfWidth,
		InterpUpsampleFac: cfg.InterpUpsampleFac,
		lagHist:           lagHist,
		scoreHist:         scoreHist,
		pitchHist:         pitchHist,
	}
	if err := e.SetRange(cfg.FMin, cfg.FMax); err != nil {
		return nil, err
	}
	return e, nil
}

// SampleRate returns the configured capture rate.
func (e *Estimator) SampleRate() float64 { return e.sampleRate }

// FMin returns the lower bound of the pitch search range.
func (e *Estimator) FMin() float64 { return e.fmin }

// FMax returns the upper bound of the pitch search range.
func (e *Estimator) FMax() float64 { return e.fmax }

// SetRange updates the valid pitch window and recomputes the lag cutoffs
// it implies.
func (e *Estimator) SetRange(fmin, fmax float64) error {
	if fmin <= 0 || fmax <= fmin {
		return fmt.Errorf("pitch: invalid search range [%g, %g] Hz", fmin, fmax)
	}
	e.fmin = fmin
	e.fmax = fmax
	e.numLags = int(math.Ceil(e.sampleRate / lowestSearchHz))
	e.lagMin = int(math.Floor(e.sampleRate / fmax))
	e.lagMax = int(math.Ceil(e.sampleRate / fmin))
	return nil
}

// OnsetActive reports whether a tone is currently being tracked.
func (e *Estimator) OnsetActive() bool { return e.onset }

// OnsetTime returns the timestamp of the last declared onset.
func (e *Estimator) OnsetTime() float64 { return e.onsetTime }

// OffsetTime returns the timestamp of the last declared offset.
func (e *Estimator) OffsetTime() float64 { return e.offsetTime }

// PitchHistory returns the bounded history of accepted pitches, oldest
// first. Read-only.
func (e *Estimator) PitchHistory() []float64 { return e.pitchHist.Read() }

// Process runs the full estimation pass over one block: difference
// function, normalization, candidate selection with onset tracking, and
// sub-sample refinement of the accepted lag. A block with no acceptable
// candidate is left with Tunable=false; that is the steady unpitched
// state, not a failure.
func (e *Estimator) Process(b *Block) {
	data := b.Data
	w := len(data)/2 - 1
	if w < 2 {
		return
	}
	n := e.numLags
	if limit := len(data) - w; n > limit {
		n = limit
	}
	if n < 2 {
		return
	}

	// Difference function: d[tau] = sum_{i<w} (x[i] - x[i+tau])^2.
	d := make([]float64, n)
	for tau := 0; tau < n; tau++ {
		var sum float64
		for i := 0; i < w; i++ {
			diff := data[i] - data[i+tau]
			sum += diff * diff
		}
		d[tau] = sum
	}

	// Cumulative-mean-normalized difference.
	dn := make([]float64, n)
	dn[0] = 1
	cum := d[0]
	for tau := 1; tau < n; tau++ {
		cum += d[tau]
		if cum == 0 {
			dn[tau] = 1 // flat silence, no dip
		} else {
			dn[tau] = d[tau] * float64(tau) / cum
		}
	}

	b.D = d
	b.DN = dn

	e.selectLag(b)
	if !b.Tunable {
		return
	}

	p := e.refine(d, b.ChosenLag)
	score := dn[b.ChosenLag]

	_ = e.lagHist.Append(b.ChosenLag)
	_ = e.scoreHist.Append(score)
	_ = e.pitchHist.Append(p)

	b.Pitch = p
	b.Score = score
}

// selectLag runs the onset/offset tracking machine over the candidate
// minima of the normalized difference function.
func (e *Estimator) selectLag(b *Block) {
	ixs := e.findMinima(b.DN, e.MinThresh)
	if len(ixs) == 0 {
		if e.onset {
			e.markOffset(b.Timestamp)
		}
		return
	}

	if e.onset {
		// Tracking in progress: start from the plain YIN choice.
		best := pickBest(b.DN, ixs, e.AbsThresh)
		ref := e.onsetLag

		logRatio := math.Log2(float64(best) / float64(ref))
		if math.Abs(logRatio-math.Round(logRatio)) < e.IntegerThresh {
			// Candidate is an integer multiple of the reference. Snap to
			// the candidate nearest the reference to suppress octave
			// jumps, but only while the reference still scores well.
			near := nearest(ixs, ref)
			if b.DN[near] < e.OffsetThresh2 {
				if near != best {
					applog.Debugf("pitch: harmonic corrected lag %d -> %d (ref %d, delta %.4f)",
						best, near, ref, logRatio)
				}
				best = near
			} else {
				// Reference has decayed out of the difference function.
				e.markOffset(b.Timestamp)
			}
		}

		b.ChosenLag = best
		b.Tunable = true
	}

	if !e.onset {
		// No tone being tracked (possibly offset just above): a new
		// onset requires the stricter threshold.
		for _, ix := range ixs {
			if b.DN[ix] < e.OnsetThresh {
				b.ChosenLag = ix
				b.Tunable = true
				e.markOnset(ix, b.Timestamp)
				break
			}
		}
	}
}

// findMinima locates local minima of dn at least minLagSeparation lags
// apart, restricted to the configured lag range and at most height.
// Returned indices are ascending; ties resolve to the earlier index.
func (e *Estimator) findMinima(dn []float64, height float64) []int {
	var cands []int
	for i := 1; i < len(dn)-1; i++ {
		if dn[i] < dn[i-1] && dn[i] < dn[i+1] {
			cands = append(cands, i)
		}
	}
	if len(cands) == 0 {
		return nil
	}

	// Enforce minimum separation, deeper minima first.
	order := make([]int, len(cands))
	copy(order, cands)
	sort.SliceStable(order, func(a, b int) bool {
		if dn[order[a]] != dn[order[b]] {
			return dn[order[a]] < dn[order[b]]
		}
		return order[a] < order[b]
	})
	kept := make([]int, 0, len(order))
	for _, ix := range order {
		ok := true
		for _, k := range kept {
			if abs(ix-k) < minLagSeparation {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, ix)
		}
	}

	sort.Ints(kept)
	out := kept[:0]
	for _, ix := range kept {
		if ix >= e.lagMin && ix <= e.lagMax && dn[ix] <= height {
			out = append(out, ix)
		}
	}
	return out
}

// pickBest returns the first candidate scoring below absThresh, or the
// global minimum among the candidates when none do.
func pickBest(dn []float64, ixs []int, absThresh float64) int {
	for _, ix := range ixs {
		if dn[ix] < absThresh {
			return ix
		}
	}
	best := ixs[0]
	for _, ix := range ixs[1:] {
		if dn[ix] < dn[best] {
			best = ix
		}
	}
	return best
}

// nearest returns the candidate closest to ref; the earlier index wins
// on a tie.
func nearest(ixs []int, ref int) int {
	best := ixs[0]
	for _, ix := range ixs[1:] {
		if abs(ix-ref) < abs(best-ref) {
			best = ix
		}
	}
	return best
}

// refine fits the raw difference function around the chosen lag with a
// cubic spline, upsamples it, and converts the interpolated arg-min into
// a pitch. Falls back to the integer lag when fitting is not possible.
func (e *Estimator) refine(d []float64, ix int) float64 {
	fallback := e.sampleRate / float64(ix)

	lo := ix - e.InterpHalfWidth
	if lo < 0 {
		lo = 0
	}
	hi := ix + e.InterpHalfWidth + 1
	if hi > len(d) {
		hi = len(d)
	}
	n := hi - lo
	if n < 3 {
		return fallback
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = float64(lo + i)
		ys[i] = d[lo+i]
	}

	var spline interp.NaturalCubic
	if err := spline.Fit(xs, ys); err != nil {
		return fallback
	}

	steps := int(math.Ceil(float64(n) * float64(e.InterpUpsampleFac)))
	if steps < 2 {
		return fallback
	}
	span := xs[n-1] - xs[0]
	bestX := xs[0]
	bestY := math.Inf(1)
	for i := 0; i < steps; i++ {
		x := xs[0] + span*float64(i)/float64(steps-1)
		if y := spline.Predict(x); y < bestY {
			bestY = y
			bestX = x
		}
	}
	if bestX <= 0 {
		return fallback
	}
	return e.sampleRate / bestX
}

func (e *Estimator) markOnset(lag int, t float64) {
	applog.Debugf("pitch: onset at lag %d (%.2f Hz), t=%.3fs", lag, e.sampleRate/float64(lag), t)
	e.onset = true
	e.onsetLag = lag
	e.onsetTime = t
	e.offsetTime = 0
}

func (e *Estimator) markOffset(t float64) {
	applog.Debugf("pitch: offset, t=%.3fs", t)
	e.lagHist.Clear()
	e.scoreHist.Clear()
	e.pitchHist.Clear()
	e.onset = false
	e.onsetLag = 0
	e.onsetTime = 0
	e.offsetTime = t
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
