// SPDX-License-Identifier: MIT
/*
Package audio owns the live capture session. An InputStream wraps one
PortAudio stream and one circular buffer; the capture callback writes
bursts into the buffer from a thread the system does not control, while
the analysis driver drains the buffer non-destructively on its own tick.

Reconfiguration (device, channels, sample rate, burst size, buffer
length) tears the session down and recreates it under the stream's lock,
so readers never observe a buffer mixing differently-shaped writes. The
callback itself synchronizes only on the buffer's internal mutex, never
on the stream lock: PortAudio's Stop waits for the running callback to
return, and a callback blocked on the stream lock during a
reconfiguration would deadlock it. Each session's callback is closed
over its own buffer instance, so a stale callback can only ever touch
the buffer being discarded.
*/
package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"tuner/internal/buffer"
	applog "tuner/internal/log"
)

// DefaultBufSecs is the capture-buffer length used when neither BufSize
// nor BufSecs is given.
const DefaultBufSecs = 0.1

// Settings are the open parameters of a capture session. Zero values
// defer to the device: Channels 0 uses all input channels, SampleRate 0
// the device default, BurstSize 0 lets the host pick the burst length.
type Settings struct {
	Device     int
	Channels   int
	SampleRate float64
	BurstSize  int
	BufSize    int     // buffer length in frames; takes precedence over BufSecs
	BufSecs    float64 // buffer length in seconds
	LowLatency bool
}

// InputStream is a reconfigurable capture session feeding a circular
// buffer. All exported methods are safe for concurrent use.
type InputStream struct {
	mu sync.Mutex

	dev      *portaudio.DeviceInfo
	deviceID int
	stream   *portaudio.Stream

	channels   int
	sampleRate float64
	burstSize  int
	lowLatency bool

	buf       *buffer.Buffer[float32]
	bufFrames int

	active bool
	closed bool

	rec atomic.Pointer[Recorder]
}

// NewInputStream resolves the device, opens a capture session, and
// allocates the buffer. The stream is not started.
func NewInputStream(s Settings) (*InputStream, error) {
	dev, err := InputDevice(s.Device)
	if err != nil {
		return nil, err
	}

	st := &InputStream{
		dev:        dev,
		deviceID:   s.Device,
		channels:   s.Channels,
		sampleRate: s.SampleRate,
		burstSize:  s.BurstSize,
		lowLatency: s.LowLatency,
	}
	if st.channels <= 0 {
		st.channels = dev.MaxInputChannels
	}
	if st.sampleRate <= 0 {
		st.sampleRate = dev.DefaultSampleRate
	}

	st.bufFrames = s.BufSize
	if st.bufFrames <= 0 {
		secs := s.BufSecs
		if secs <= 0 {
			secs = DefaultBufSecs
		}
		st.bufFrames = int(secs*st.sampleRate + 0.5)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.openLocked(); err != nil {
		return nil, err
	}
	return st, nil
}

// openLocked opens a PortAudio stream with the current settings and
// allocates a fresh zero-padded buffer sized for them. Caller holds mu.
func (st *InputStream) openLocked() error {
	latency := st.dev.DefaultHighInputLatency
	if st.lowLatency {
		latency = st.dev.DefaultLowInputLatency
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   st.dev,
			Channels: st.channels,
			Latency:  latency,
		},
		FramesPerBuffer: st.burstSize,
		SampleRate:      st.sampleRate,
	}

	buf, err := buffer.NewPadded[float32](st.bufFrames, st.channels, 0)
	if err != nil {
		return err
	}

	// The callback binds this session's buffer directly; it must not
	// touch st fields guarded by mu.
	rec := &st.rec
	callback := func(in []float32) {
		if err := buf.Write(in); err != nil {
			applog.Errorf("audio: dropped burst: %v", err)
		}
		if r := rec.Load(); r != nil {
			r.Write(in)
		}
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return fmt.Errorf("audio: failed to open stream on %q: %w", st.dev.Name, err)
	}

	st.stream = stream
	st.buf = buf
	st.closed = false
	st.active = false

	// The host may have negotiated a rate; report the live value.
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		st.sampleRate = info.SampleRate
	}
	return nil
}

// reinit captures the live settings, merges the requested change, and
// atomically replaces session and buffer. Caller holds mu. The new
// session is restarted when the old one was active.
func (st *InputStream) reinit(apply func(*InputStream)) error {
	wasActive := st.active

	if st.stream != nil && !st.closed {
		if st.active {
			if err := st.stream.Stop(); err != nil {
				applog.Warnf("audio: stopping stream for reconfiguration: %v", err)
			}
		}
		if err := st.stream.Close(); err != nil {
			applog.Warnf("audio: closing stream for reconfiguration: %v", err)
		}
	}
	st.active = false

	if apply != nil {
		apply(st)
	}
	if err := st.openLocked(); err != nil {
		st.closed = true
		return err
	}

	if wasActive {
		if err := st.stream.Start(); err != nil {
			return fmt.Errorf("audio: failed to restart stream: %w", err)
		}
		st.active = true
	}
	return nil
}

// Name returns the capture device's name.
func (st *InputStream) Name() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dev.Name
}

// Active reports whether the device is streaming.
func (st *InputStream) Active() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active
}

// Closed reports whether the session has been released.
func (st *InputStream) Closed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.closed
}

// SampleRate returns the live session's sample rate in Hz.
func (st *InputStream) SampleRate() float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sampleRate
}

// Channels returns the number of captured channels.
func (st *InputStream) Channels() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.channels
}

// BurstSize returns the frames delivered per callback; 0 means the host
// decides per burst.
func (st *InputStream) BurstSize() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.burstSize
}

// BufSize returns the buffer length in frames.
func (st *InputStream) BufSize() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bufFrames
}

// BufSecs returns the buffer length in seconds, derived from the live
// sample rate rather than a second copy of the setting.
func (st *InputStream) BufSecs() float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return float64(st.bufFrames) / st.sampleRate
}

// SetDevice reconfigures onto another capture device.
func (st *InputStream) SetDevice(id int) error {
	dev, err := InputDevice(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.reinit(func(s *InputStream) {
		s.dev = dev
		s.deviceID = id
		if s.channels > dev.MaxInputChannels {
			s.channels = dev.MaxInputChannels
		}
	})
}

// SetChannels reconfigures the captured channel count.
func (st *InputStream) SetChannels(n int) error {
	if n <= 0 {
		return fmt.Errorf("audio: channel count must be positive, got %d", n)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.reinit(func(s *InputStream) { s.channels = n })
}

// SetSampleRate reconfigures the capture rate, preserving the buffer's
// length in seconds.
func (st *InputStream) SetSampleRate(fs float64) error {
	if fs <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %g", fs)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	secs := float64(st.bufFrames) / st.sampleRate
	return st.reinit(func(s *InputStream) {
		s.sampleRate = fs
		s.bufFrames = int(secs*fs + 0.5)
	})
}

// SetBurstSize reconfigures the frames delivered per callback.
func (st *InputStream) SetBurstSize(n int) error {
	if n < 0 {
		return fmt.Errorf("audio: burst size cannot be negative, got %d", n)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.reinit(func(s *InputStream) { s.burstSize = n })
}

// SetBufSize resizes the buffer to the given length in frames. The
// session is recreated so the callback binds the fresh buffer.
func (st *InputStream) SetBufSize(frames int) error {
	if frames <= 0 {
		return fmt.Errorf("audio: buffer length must be positive, got %d", frames)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.reinit(func(s *InputStream) { s.bufFrames = frames })
}

// SetBufSecs sets the buffer length in seconds at the live sample rate.
func (st *InputStream) SetBufSecs(secs float64) error {
	if secs <= 0 {
		return fmt.Errorf("audio: buffer length must be positive, got %g", secs)
	}
	st.mu.Lock()
	frames := int(secs*st.sampleRate + 0.5)
	st.mu.Unlock()
	return st.SetBufSize(frames)
}

// SetRecorder attaches (or, with nil, detaches) a recorder tap that
// receives every captured burst.
func (st *InputStream) SetRecorder(r *Recorder) {
	st.rec.Store(r)
}

// Start begins capture, lazily reopening a closed session first.
func (st *InputStream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		if err := st.reinit(nil); err != nil {
			return err
		}
	}
	if st.active {
		return nil
	}
	applog.Debugf("audio: starting stream on %q", st.dev.Name)
	if err := st.stream.Start(); err != nil {
		return fmt.Errorf("audio: failed to start stream: %w", err)
	}
	st.active = true
	return nil
}

// Stop halts capture and clears the buffer so a restart never reads
// stale audio. Returns quietly if already stopped.
func (st *InputStream) Stop() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.active || st.closed {
		return nil
	}
	applog.Debugf("audio: stopping stream on %q", st.dev.Name)
	if err := st.stream.Stop(); err != nil {
		return fmt.Errorf("audio: failed to stop stream: %w", err)
	}
	st.active = false
	st.buf.Clear()
	return nil
}

// Close halts capture and releases the session. Returns quietly if
// already closed.
func (st *InputStream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	applog.Debugf("audio: closing stream on %q", st.dev.Name)
	if st.active {
		if err := st.stream.Stop(); err != nil {
			applog.Warnf("audio: stopping stream on close: %v", err)
		}
		st.active = false
	}
	if err := st.stream.Close(); err != nil {
		return fmt.Errorf("audio: failed to close stream: %w", err)
	}
	st.closed = true
	return nil
}

// Read returns the buffer's current contents, interleaved frames oldest
// first. Non-destructive; an empty slice means the device has not
// delivered audio yet.
func (st *InputStream) Read() []float32 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.buf.Read()
}

// WaitWarmup blocks until roughly one buffer's worth of audio has been
// captured, bounded by the given timeout.
func (st *InputStream) WaitWarmup(timeout time.Duration) {
	warm := time.Duration(st.BufSecs() * float64(time.Second))
	if warm > timeout {
		warm = timeout
	}
	time.Sleep(warm)
}

func (st *InputStream) String() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return fmt.Sprintf("<%s: device=%d, active=%v, closed=%v, channels=%d, samplerate=%g Hz, bufsize=%d>",
		st.dev.Name, st.deviceID, st.active, st.closed, st.channels, st.sampleRate, st.bufFrames)
}
