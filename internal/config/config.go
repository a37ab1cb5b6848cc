// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded
// from YAML with environment overrides applied on top.
type Config struct {
	Debug      bool             `yaml:"debug"`             // Enable debug mode (verbose logging).
	LogLevel   string           `yaml:"log_level"`         // Logging level ("debug", "info", "warn", "error").
	Command    string           `yaml:"command,omitempty"` // A one-off command to execute instead of running the tuner (e.g., "list").
	Audio      AudioConfig      `yaml:"audio"`             // Audio capture settings.
	Pitch      PitchConfig      `yaml:"pitch"`             // Pitch estimation settings.
	Intonation IntonationConfig `yaml:"intonation"`        // Scale and tuning reference settings.
	Tuner      TunerConfig      `yaml:"tuner"`             // Analysis loop settings.
	Spectrum   SpectrumConfig   `yaml:"spectrum"`          // Optional spectrum analysis settings.
	Recording  RecordingConfig  `yaml:"recording"`         // Audio recording settings.
	Transport  TransportConfig  `yaml:"transport"`         // Result publishing settings.
}

// AudioConfig holds settings for the microphone input stream.
type AudioConfig struct {
	InputDevice int     `yaml:"input_device"` // PortAudio device index for audio input (-1 for default).
	Channels    int     `yaml:"channels"`     // Number of input channels to capture (0 uses the device maximum).
	SampleRate  float64 `yaml:"sample_rate"`  // Sample rate in Hz (0 uses the device default).
	BurstSize   int     `yaml:"burst_size"`   // Frames delivered per capture callback.
	BufSecs     float64 `yaml:"buf_secs"`     // Length of the rolling analysis buffer in seconds.
	LowLatency  bool    `yaml:"low_latency"`  // Request low latency settings from the device.
}

// PitchConfig holds the tunable parameters of the pitch estimator.
// Zero thresholds fall back to the estimator defaults.
type PitchConfig struct {
	FMin          float64 `yaml:"fmin"`           // Lower bound of the pitch search range in Hz.
	FMax          float64 `yaml:"fmax"`           // Upper bound of the pitch search range in Hz.
	MinThresh     float64 `yaml:"min_thresh"`     // Candidate admission threshold while tracking.
	AbsThresh     float64 `yaml:"abs_thresh"`     // Confident-candidate threshold.
	OnsetThresh   float64 `yaml:"onset_thresh"`   // Threshold for declaring a new note onset.
	OffsetThresh  float64 `yaml:"offset_thresh"`  // Offset threshold.
	OffsetThresh2 float64 `yaml:"offset_thresh2"` // Harmonic-correction guard threshold.
	HistLen       int     `yaml:"hist_len"`       // Length of the rolling estimate history.
}

// IntonationConfig holds the scale and tuning reference.
type IntonationConfig struct {
	ScaleFile   string  `yaml:"scale_file"`   // Path to a YAML scale definition ("" for twelve-tone equal temperament).
	TuningNote  string  `yaml:"tuning_note"`  // Name of the reference note within the scale.
	TuningPitch float64 `yaml:"tuning_pitch"` // Reference frequency in Hz.
	HistLen     int     `yaml:"hist_len"`     // Length of the error smoothing history.
}

// TunerConfig holds settings for the analysis loop.
type TunerConfig struct {
	Interval time.Duration `yaml:"interval"` // Interval between analysis passes.
}

// SpectrumConfig holds optional FFT magnitude analysis settings.
type SpectrumConfig struct {
	Enabled bool   `yaml:"enabled"`  // Enable spectrum analysis alongside pitch tracking.
	FFTSize int    `yaml:"fft_size"` // FFT size, must be a power of two.
	Window  string `yaml:"window"`   // Window function name (e.g., "Hann", "Hamming").
}

// RecordingConfig holds settings for capturing the input to a WAV file.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Record the input stream while tuning.
	OutputFile string `yaml:"output_file"` // Destination WAV path ("" auto-generates one).
}

// TransportConfig holds settings for publishing results.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"` // Serve results to WebSocket clients.
	WebSocketAddr    string        `yaml:"websocket_addr"`    // Listen address for the WebSocket server.
	UDPEnabled       bool          `yaml:"udp_enabled"`       // Send packed results over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"` // Interval between UDP packets.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice: -1,
			Channels:    0, // device maximum
			SampleRate:  0, // device default
			BurstSize:   512,
			BufSecs:     0.1,
			LowLatency:  false,
		},
		Pitch: PitchConfig{
			FMin:    60,
			FMax:    1500,
			HistLen: 20,
		},
		Intonation: IntonationConfig{
			ScaleFile:   "",
			TuningNote:  "A",
			TuningPitch: 440,
			HistLen:     20,
		},
		Tuner: TunerConfig{
			Interval: 50 * time.Millisecond,
		},
		Spectrum: SpectrumConfig{
			Enabled: false,
			FFTSize: 4096,
			Window:  "Hann",
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: "",
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddr:    ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file specified by path. If path
// is empty, it searches default locations ("config.yaml"); when no file
// is found the built-in defaults apply. Environment overrides are applied
// after loading, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"tuner.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that the YAML schema cannot.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 0 {
		return fmt.Errorf("audio.sample_rate cannot be negative")
	}
	if c.Audio.Channels < 0 {
		return fmt.Errorf("audio.channels cannot be negative")
	}
	if c.Audio.BufSecs <= 0 {
		return fmt.Errorf("audio.buf_secs must be positive")
	}
	if c.Pitch.FMin <= 0 || c.Pitch.FMax <= c.Pitch.FMin {
		return fmt.Errorf("pitch search range [%g, %g] is invalid", c.Pitch.FMin, c.Pitch.FMax)
	}
	if c.Pitch.HistLen <= 0 {
		return fmt.Errorf("pitch.hist_len must be positive")
	}
	if c.Intonation.TuningPitch <= 0 {
		return fmt.Errorf("intonation.tuning_pitch must be positive")
	}
	if c.Intonation.HistLen <= 0 {
		return fmt.Errorf("intonation.hist_len must be positive")
	}
	if c.Tuner.Interval <= 0 {
		return fmt.Errorf("tuner.interval must be positive")
	}
	if c.Spectrum.Enabled && c.Spectrum.FFTSize <= 0 {
		return fmt.Errorf("spectrum.fft_size must be positive when spectrum is enabled")
	}
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddr == "" {
		return fmt.Errorf("transport.websocket_addr must be set when the WebSocket server is enabled")
	}
	return nil
}

// applyEnvOverrides applies TUNER_-prefixed environment variables on top
// of the loaded configuration. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("TUNER_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
		}
	}
	if val, ok := os.LookupEnv("TUNER_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("TUNER_INPUT_DEVICE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = n
		}
	}
	if val, ok := os.LookupEnv("TUNER_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = f
		}
	}
	if val, ok := os.LookupEnv("TUNER_TUNING_PITCH"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Intonation.TuningPitch = f
		}
	}
	if val, ok := os.LookupEnv("TUNER_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
		}
	}
	if val, ok := os.LookupEnv("TUNER_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("TUNER_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
		}
	}
	if val, ok := os.LookupEnv("TUNER_WEBSOCKET_ADDR"); ok {
		c.Transport.WebSocketAddr = val
	}
}
