// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestRecorderLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "take.wav")

	r := NewRecorder(1, 44100)
	if r.Recording() {
		t.Error("new recorder should be disarmed")
	}

	// Bursts while disarmed are dropped, not an error.
	r.Write([]float32{0.1, 0.2})

	if err := r.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Recording() {
		t.Error("recorder should be armed after Start")
	}
	if err := r.Start(path); err == nil {
		t.Error("second Start should fail while recording")
	}

	r.Write([]float32{0, 0.5, -0.5, 1.0, -1.0})
	r.Write([]float32{0.25, -0.25})

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.Recording() {
		t.Error("recorder should be disarmed after Stop")
	}
	if err := r.Stop(); err != nil {
		t.Errorf("Stop when idle should be a no-op, got %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening recording: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding recording: %v", err)
	}
	if buf.Format.SampleRate != 44100 || buf.Format.NumChannels != 1 {
		t.Errorf("recorded format: got %d Hz %d ch", buf.Format.SampleRate, buf.Format.NumChannels)
	}
	if len(buf.Data) != 7 {
		t.Errorf("recorded samples: got %d, want 7", len(buf.Data))
	}
}

func TestRecorderClampsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.wav")

	r := NewRecorder(1, 8000)
	if err := r.Start(path); err != nil {
		t.Fatal(err)
	}
	r.Write([]float32{2.0, -2.0})
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Data) != 2 {
		t.Fatalf("recorded samples: got %d, want 2", len(buf.Data))
	}
	if buf.Data[0] < buf.Data[1] {
		t.Errorf("clamped samples out of order: %v", buf.Data)
	}
}
