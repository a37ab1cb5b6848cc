// SPDX-License-Identifier: MIT
// Package testutil holds signal generators and transport doubles shared
// by the package tests.
package testutil

import (
	"math"
	"sync"
)

// SineWave generates n samples of a pure sine at the given frequency
// and amplitude.
func SineWave(n int, sampleRate, freq, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = amp * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

// HarmonicWave generates a tone with a fundamental and two harmonics,
// closer to a real instrument than a pure sine.
func HarmonicWave(n int, sampleRate, fundamental, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = amp * (0.6*math.Sin(2*math.Pi*fundamental*t) +
			0.3*math.Sin(2*math.Pi*2*fundamental*t) +
			0.1*math.Sin(2*math.Pi*3*fundamental*t))
	}
	return out
}

// SineWave32 is SineWave for float32 capture-format slices.
func SineWave32(n int, sampleRate, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*t))
	}
	return out
}

// MockTransport records everything sent through it.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	closed bool
}

// Send appends the payload to Sent.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SentCount returns how many payloads were sent.
func (m *MockTransport) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// LastSent returns the most recent payload, or nil.
func (m *MockTransport) LastSent() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return m.Sent[len(m.Sent)-1]
}
