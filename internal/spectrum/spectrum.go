// SPDX-License-Identifier: MIT
/*
Package spectrum computes magnitude spectra of analysis blocks. It feeds
the waveform/spectrum views, which live outside this core and consume
the magnitudes through a transport or the provider methods here.
*/
package spectrum

import (
	"fmt"
	"math/cmplx"
	"strings"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	applog "tuner/internal/log"
	"tuner/pkg/bitint"
)

// WindowFunc selects the taper applied before the FFT.
type WindowFunc int

const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	BlackmanNuttall
	Nuttall
	Lanczos
	Rectangular
)

// ParseWindowFunc converts a case-insensitive name to a WindowFunc.
// Unknown names report an error and fall back to Hann.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "nuttall":
		return Nuttall, nil
	case "lanczos":
		return Lanczos, nil
	case "rectangular", "none":
		return Rectangular, nil
	default:
		return Hann, fmt.Errorf("spectrum: unknown window function %q", name)
	}
}

// coefficients returns the window's coefficient vector of length n.
func (w WindowFunc) coefficients(n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Rectangular:
		// Coefficients stay at 1.
	default:
		applog.Warnf("spectrum: unknown window type %d, using Hann", w)
		window.Hann(coeffs)
	}
	return coeffs
}

// Processor performs FFT magnitude analysis over mono float64 blocks.
// Buffers are pre-allocated; the workspace lock lets one analysis
// goroutine write while display consumers read.
type Processor struct {
	fftSize    int
	sampleRate float64
	fft        *fourier.FFT

	mu        sync.RWMutex
	input     []float64
	output    []complex128
	magnitude []float64
	window    []float64
}

// NewProcessor builds a processor for the given FFT size (a power of 2)
// and sample rate.
func NewProcessor(fftSize int, sampleRate float64, windowType WindowFunc) (*Processor, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("spectrum: FFT size must be a power of 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("spectrum: sample rate must be positive, got %g", sampleRate)
	}

	bins := fftSize/2 + 1
	return &Processor{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(fftSize),
		input:      make([]float64, fftSize),
		output:     make([]complex128, bins),
		magnitude:  make([]float64, bins),
		window:     windowType.coefficients(fftSize),
	}, nil
}

// Process windows the samples (zero-padding short input), runs the FFT,
// and stores per-bin magnitudes. No allocations after construction.
func (p *Processor) Process(samples []float64) {
	p.mu.Lock()
	for i := 0; i < p.fftSize; i++ {
		if i < len(samples) {
			p.input[i] = samples[i] * p.window[i]
		} else {
			p.input[i] = 0
		}
	}
	p.fft.Coefficients(p.output, p.input)
	for i, c := range p.output {
		p.magnitude[i] = cmplx.Abs(c)
	}
	p.mu.Unlock()
}

// Magnitudes returns a copy of the latest magnitude spectrum.
func (p *Processor) Magnitudes() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]float64, len(p.magnitude))
	copy(out, p.magnitude)
	return out
}

// MagnitudesInto copies the latest spectrum into dest, which must have
// exactly FFTSize()/2+1 elements. For readers avoiding allocation.
func (p *Processor) MagnitudesInto(dest []float64) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(dest) != len(p.magnitude) {
		return fmt.Errorf("spectrum: destination length %d, need %d", len(dest), len(p.magnitude))
	}
	copy(dest, p.magnitude)
	return nil
}

// FreqForBin returns the center frequency in Hz of the given bin, or 0
// when out of range.
func (p *Processor) FreqForBin(bin int) float64 {
	if bin < 0 || bin >= len(p.output) {
		return 0
	}
	return float64(bin) * p.sampleRate / float64(p.fftSize)
}

// FFTSize returns the number of FFT points.
func (p *Processor) FFTSize() int { return p.fftSize }

// SampleRate returns the analysis sample rate in Hz.
func (p *Processor) SampleRate() float64 { return p.sampleRate }
