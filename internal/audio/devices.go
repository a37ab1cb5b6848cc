// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// DefaultDevice selects the system default input device.
const DefaultDevice = -1

// Initialize sets up the PortAudio subsystem. Must be called before any
// capture operation and paired with Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audio: failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts the PortAudio subsystem down. Defer it right after
// Initialize.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("audio: failed to terminate PortAudio: %w", err)
	}
	return nil
}

// Device is a capture-relevant view of a PortAudio device.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// InputDevice resolves a device ID to PortAudio device info. An ID of
// DefaultDevice (-1) returns the system default input device.
func InputDevice(id int) (*portaudio.DeviceInfo, error) {
	if id == DefaultDevice {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("audio: no default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("audio: invalid device ID %d", id)
	}
	if devices[id].MaxInputChannels == 0 {
		return nil, fmt.Errorf("audio: device %d (%s) has no input channels", id, devices[id].Name)
	}
	return devices[id], nil
}

// Devices lists all PortAudio devices.
func Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]Device, len(infos))
	for i, info := range infos {
		out[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
	}
	return out, nil
}

// ListDevices prints every available device with its capture-relevant
// properties.
func ListDevices() error {
	infos, err := portaudio.Devices()
	if err != nil {
		return err
	}

	fmt.Printf("\nAvailable Audio Devices\n\n")
	for i, dev := range infos {
		kind := "Output"
		if dev.MaxInputChannels > 0 && dev.MaxOutputChannels > 0 {
			kind = "Input/Output"
		} else if dev.MaxInputChannels > 0 {
			kind = "Input"
		}
		fmt.Printf("[%d] %s (%s)\n", i, dev.Name, kind)
		fmt.Printf("    Input channels: %d, Output channels: %d\n", dev.MaxInputChannels, dev.MaxOutputChannels)
		fmt.Printf("    Default sample rate: %.0f Hz\n", dev.DefaultSampleRate)
		fmt.Printf("    Latency: Low=%.2fms, High=%.2fms\n\n",
			dev.DefaultLowInputLatency.Seconds()*1000,
			dev.DefaultHighInputLatency.Seconds()*1000)
	}
	return nil
}
