// SPDX-License-Identifier: MIT
// Package tuner ties the capture, pitch, and intonation stages together.
// A Driver polls its audio source on a fixed interval, runs each block
// through the estimator chain, and fans the result out to transports.
package tuner

import (
	"fmt"
	"sync"
	"time"

	"tuner/internal/intonation"
	applog "tuner/internal/log"
	"tuner/internal/pitch"
	"tuner/internal/spectrum"
	"tuner/internal/timing"
	"tuner/internal/transport"
)

// Source is the audio input the driver polls. *audio.InputStream
// satisfies it; tests substitute a fake.
type Source interface {
	Start() error
	Stop() error
	Read() []float32
	SampleRate() float64
	Channels() int
}

// Result is one processed reading, the unit sent to transports.
type Result struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	RMS       float64 `json:"rms"`
	Tunable   bool    `json:"tunable"`
	Pitch     float64 `json:"pitch"`
	Note      int     `json:"note"`
	NoteName  string  `json:"noteName"`
	Cents     float64 `json:"cents"`
	CentsAdj  float64 `json:"centsAdj"`
}

// Driver runs the estimation loop. Start launches a goroutine that
// ticks at the configured interval until Stop is called.
type Driver struct {
	source Source
	pitch  *pitch.Estimator
	inton  *intonation.Estimator
	spec   *spectrum.Processor // optional, nil disables spectrum analysis
	clock  *timing.Clock

	transports []transport.Transport
	interval   time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	blockIndex int

	latestMu sync.RWMutex
	latest   Result
	latestOK bool

	// Scratch buffer for the mono downmix, reused across ticks.
	mono []float64
}

// NewDriver creates a Driver over the given source and estimator chain.
// If interval <= 0 it defaults to 50ms.
func NewDriver(src Source, pe *pitch.Estimator, ie *intonation.Estimator, interval time.Duration) (*Driver, error) {
	if src == nil {
		return nil, fmt.Errorf("tuner: source cannot be nil")
	}
	if pe == nil {
		return nil, fmt.Errorf("tuner: pitch estimator cannot be nil")
	}
	if ie == nil {
		return nil, fmt.Errorf("tuner: intonation estimator cannot be nil")
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Driver{
		source:   src,
		pitch:    pe,
		inton:    ie,
		clock:    timing.NewClock(),
		interval: interval,
	}, nil
}

// SetSpectrum attaches an optional spectrum processor that is fed each
// block's samples. Must be called before Start.
func (d *Driver) SetSpectrum(p *spectrum.Processor) {
	d.spec = p
}

// AddTransport registers a transport that receives every Result.
// Must be called before Start.
func (d *Driver) AddTransport(t transport.Transport) {
	if t != nil {
		d.transports = append(d.transports, t)
	}
}

// Interval returns the tick interval.
func (d *Driver) Interval() time.Duration { return d.interval }

// Latest returns the most recent result. The boolean is false until the
// first block has been processed.
func (d *Driver) Latest() (Result, bool) {
	d.latestMu.RLock()
	defer d.latestMu.RUnlock()
	return d.latest, d.latestOK
}

// Start opens the source and launches the processing goroutine.
// Calling Start while already running is a no-op.
func (d *Driver) Start() error {
	d.mu.Lock()
	if d.ticker != nil {
		d.mu.Unlock()
		applog.Warnf("Driver: Start called but already running.")
		return nil
	}

	if err := d.source.Start(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("tuner: failed to start source: %w", err)
	}
	if d.clock.Ready() {
		if err := d.clock.Start(); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("tuner: %w", err)
		}
	}

	d.ticker = time.NewTicker(d.interval)
	d.doneChan = make(chan struct{})
	d.stopOnce = sync.Once{}

	ticker := d.ticker
	doneChan := d.doneChan

	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		applog.Infof("Driver: Processing goroutine started (Interval: %s)", d.interval)
		for {
			select {
			case <-ticker.C:
				d.processTick()
			case <-doneChan:
				applog.Infof("Driver: Processing goroutine received stop signal.")
				return
			}
		}
	}()
	return nil
}

// Stop terminates the processing goroutine, waits for it to exit, and
// stops the source. Safe to call multiple times.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if d.ticker == nil {
		d.mu.Unlock()
		applog.Debugf("Driver: Stop called but not running.")
		return nil
	}

	d.stopOnce.Do(func() {
		applog.Infof("Driver: Initiating stop sequence...")
		close(d.doneChan)
		d.ticker.Stop()
		d.ticker = nil
	})

	d.mu.Unlock()

	d.wg.Wait()

	if err := d.source.Stop(); err != nil {
		applog.Warnf("Driver: Error stopping source: %v", err)
	}
	applog.Infof("Driver: Stopped.")
	return nil
}

// Close stops the driver and closes all registered transports.
func (d *Driver) Close() error {
	err := d.Stop()
	for _, t := range d.transports {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// processTick reads the source buffer, runs the estimator chain, and
// publishes the result. Empty reads (warmup, stopped stream) are skipped.
func (d *Driver) processTick() {
	data := d.source.Read()
	if len(data) == 0 {
		return
	}

	channels := d.source.Channels()
	if channels < 1 {
		channels = 1
	}

	// Downmix by taking the first channel of each frame.
	frames := len(data) / channels
	if cap(d.mono) < frames {
		d.mono = make([]float64, frames)
	}
	mono := d.mono[:frames]
	for i := 0; i < frames; i++ {
		mono[i] = float64(data[i*channels])
	}

	elapsed, err := d.clock.Elapsed()
	if err != nil {
		applog.Errorf("Driver: %v", err)
		return
	}

	d.blockIndex++
	b := pitch.NewBlock(mono, d.blockIndex, elapsed.Seconds(), d.source.SampleRate())

	d.pitch.Process(b)
	d.inton.Process(b)

	if d.spec != nil {
		d.spec.Process(mono)
	}

	res := d.buildResult(b)

	d.latestMu.Lock()
	d.latest = res
	d.latestOK = true
	d.latestMu.Unlock()

	for _, t := range d.transports {
		if err := t.Send(res); err != nil {
			applog.Warnf("Driver: Transport send error: %v", err)
		}
	}
}

func (d *Driver) buildResult(b *pitch.Block) Result {
	res := Result{
		Index:     b.Index,
		Timestamp: b.Timestamp,
		RMS:       b.RMS,
		Tunable:   b.Tunable,
		Pitch:     b.Pitch,
		Note:      b.Note,
		Cents:     b.Error,
		CentsAdj:  b.ErrorAdj,
	}
	if b.Note >= 0 {
		if n, err := d.inton.Scale().Note(b.Note); err == nil {
			res.NoteName = n.Name
		}
	}
	return res
}
