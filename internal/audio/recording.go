// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "tuner/internal/log"
)

const recordBitDepth = 16

// Recorder taps captured bursts into a WAV file. The armed flag is
// atomic so the capture callback can check it without locking; encoding
// itself is serialized by a mutex since Start/Stop race with Write.
type Recorder struct {
	channels   int
	sampleRate int

	armed atomic.Bool

	mu   sync.Mutex
	file *os.File
	enc  *wav.Encoder
	pcm  *goaudio.IntBuffer
}

// NewRecorder creates a recorder for interleaved input with the given
// shape. It stays disarmed until Start.
func NewRecorder(channels int, sampleRate float64) *Recorder {
	return &Recorder{
		channels:   channels,
		sampleRate: int(sampleRate),
	}
}

// Recording reports whether a file is currently being written.
func (r *Recorder) Recording() bool {
	return r.armed.Load()
}

// Start opens the output file and arms the recorder.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.armed.Load() {
		return fmt.Errorf("audio: already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("audio: failed to create recording file: %w", err)
	}
	r.file = file
	r.enc = wav.NewEncoder(file, r.sampleRate, recordBitDepth, r.channels, 1)
	r.pcm = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: r.channels,
			SampleRate:  r.sampleRate,
		},
		Data: make([]int, 0),
	}

	applog.Infof("audio: recording to %s", filename)
	r.armed.Store(true)
	return nil
}

// Write converts one burst of float32 samples in [-1, 1) to PCM and
// appends it to the file. Bursts arriving while disarmed are dropped.
func (r *Recorder) Write(in []float32) {
	if !r.armed.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}

	const scale = float64(math.MaxInt16)
	if cap(r.pcm.Data) < len(in) {
		r.pcm.Data = make([]int, len(in))
	}
	r.pcm.Data = r.pcm.Data[:len(in)]
	for i, s := range in {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		r.pcm.Data[i] = int(v * scale)
	}

	if err := r.enc.Write(r.pcm); err != nil {
		applog.Errorf("audio: error writing recording: %v", err)
	}
}

// Stop disarms the recorder and finalizes the WAV file. Safe to call
// when not recording.
func (r *Recorder) Stop() error {
	if !r.armed.Swap(false) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc != nil {
		if err := r.enc.Close(); err != nil {
			return fmt.Errorf("audio: failed to finalize recording: %w", err)
		}
		r.enc = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return err
		}
		r.file = nil
	}
	return nil
}
