// SPDX-License-Identifier: MIT
package tuner

import (
	"math"
	"sync"
	"testing"
	"time"

	"tuner/internal/intonation"
	"tuner/internal/pitch"
	"tuner/pkg/testutil"
)

const (
	testSampleRate = 44100.0
	testBlockSize  = 4096
)

// fakeSource is an in-memory Source that hands out the same buffer on
// every Read, standing in for the live input stream.
type fakeSource struct {
	mu       sync.Mutex
	data     []float32
	channels int
	rate     float64
	started  bool
	stopped  bool
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeSource) Read() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

func (f *fakeSource) SampleRate() float64 { return f.rate }
func (f *fakeSource) Channels() int       { return f.channels }

func (f *fakeSource) wasStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeSource) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func newTestDriver(t *testing.T, src Source) *Driver {
	t.Helper()
	pe, err := pitch.NewEstimator(pitch.DefaultConfig(testSampleRate))
	if err != nil {
		t.Fatalf("pitch.NewEstimator failed: %v", err)
	}
	ie, err := intonation.NewEstimator(10)
	if err != nil {
		t.Fatalf("intonation.NewEstimator failed: %v", err)
	}
	d, err := NewDriver(src, pe, ie, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	return d
}

// waitForResult polls Latest until a result arrives or the deadline expires.
func waitForResult(t *testing.T, d *Driver, deadline time.Duration) Result {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if res, ok := d.Latest(); ok {
			return res
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no result produced before deadline")
	return Result{}
}

func TestDriverLifecycle(t *testing.T) {
	src := &fakeSource{
		data:     testutil.SineWave32(testBlockSize, testSampleRate, 440, 0.8),
		channels: 1,
		rate:     testSampleRate,
	}
	mock := &testutil.MockTransport{}

	d := newTestDriver(t, src)
	d.AddTransport(mock)

	if _, ok := d.Latest(); ok {
		t.Fatal("Latest reported a result before Start")
	}

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !src.wasStarted() {
		t.Error("driver did not start its source")
	}

	// Starting twice is a no-op, not an error.
	if err := d.Start(); err != nil {
		t.Errorf("second Start returned error: %v", err)
	}

	res := waitForResult(t, d, 2*time.Second)
	if !res.Tunable {
		t.Fatal("expected a tunable result for a 440 Hz sine")
	}
	if math.Abs(res.Pitch-440) > 5 {
		t.Errorf("pitch = %.2f Hz, want 440 +/- 5", res.Pitch)
	}
	if res.Note != 9 || res.NoteName != "A" {
		t.Errorf("note = %d (%q), want 9 (A)", res.Note, res.NoteName)
	}
	if res.RMS <= 0 {
		t.Errorf("rms = %g, want > 0", res.RMS)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !src.wasStopped() {
		t.Error("driver did not stop its source")
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop returned error: %v", err)
	}

	if mock.SentCount() == 0 {
		t.Error("transport received no results")
	}
	if _, ok := mock.LastSent().(Result); !ok {
		t.Errorf("transport payload has type %T, want Result", mock.LastSent())
	}
}

func TestDriverStereoDownmix(t *testing.T) {
	// Interleave the sine into channel 0 and silence into channel 1; the
	// driver analyzes channel 0 only.
	mono := testutil.SineWave32(testBlockSize, testSampleRate, 440, 0.8)
	stereo := make([]float32, 2*len(mono))
	for i, v := range mono {
		stereo[2*i] = v
	}

	src := &fakeSource{data: stereo, channels: 2, rate: testSampleRate}
	d := newTestDriver(t, src)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	res := waitForResult(t, d, 2*time.Second)
	if !res.Tunable {
		t.Fatal("stereo sine not tunable after downmix")
	}
	if math.Abs(res.Pitch-440) > 5 {
		t.Errorf("pitch = %.2f Hz, want 440 +/- 5", res.Pitch)
	}
}

func TestDriverSkipsEmptyReads(t *testing.T) {
	src := &fakeSource{data: nil, channels: 1, rate: testSampleRate}
	d := newTestDriver(t, src)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	time.Sleep(50 * time.Millisecond)
	if _, ok := d.Latest(); ok {
		t.Error("driver produced a result from empty reads")
	}
}

func TestDriverSilenceUntunable(t *testing.T) {
	src := &fakeSource{
		data:     make([]float32, testBlockSize),
		channels: 1,
		rate:     testSampleRate,
	}
	d := newTestDriver(t, src)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	res := waitForResult(t, d, 2*time.Second)
	if res.Tunable {
		t.Error("silence reported as tunable")
	}
	if res.Note != -1 || res.NoteName != "" {
		t.Errorf("note = %d (%q), want -1 with empty name", res.Note, res.NoteName)
	}
	if res.Pitch != -1 {
		t.Errorf("pitch = %g, want -1 for silence", res.Pitch)
	}
}

func TestNewDriverValidation(t *testing.T) {
	pe, err := pitch.NewEstimator(pitch.DefaultConfig(testSampleRate))
	if err != nil {
		t.Fatalf("pitch.NewEstimator failed: %v", err)
	}
	ie, err := intonation.NewEstimator(10)
	if err != nil {
		t.Fatalf("intonation.NewEstimator failed: %v", err)
	}
	src := &fakeSource{channels: 1, rate: testSampleRate}

	if _, err := NewDriver(nil, pe, ie, time.Millisecond); err == nil {
		t.Error("NewDriver accepted nil source")
	}
	if _, err := NewDriver(src, nil, ie, time.Millisecond); err == nil {
		t.Error("NewDriver accepted nil pitch estimator")
	}
	if _, err := NewDriver(src, pe, nil, time.Millisecond); err == nil {
		t.Error("NewDriver accepted nil intonation estimator")
	}

	// A non-positive interval falls back to the default rather than failing.
	d, err := NewDriver(src, pe, ie, 0)
	if err != nil {
		t.Fatalf("NewDriver rejected zero interval: %v", err)
	}
	if d.Interval() <= 0 {
		t.Errorf("interval = %s, want a positive default", d.Interval())
	}
}
