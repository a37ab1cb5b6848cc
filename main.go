// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tuner/cmd"
	"tuner/internal/audio"
	"tuner/internal/config"
	"tuner/internal/intonation"
	applog "tuner/internal/log"
	"tuner/internal/pitch"
	"tuner/internal/scale"
	"tuner/internal/spectrum"
	"tuner/internal/transport"
	"tuner/internal/transport/udp"
	"tuner/internal/tui"
	"tuner/internal/tuner"
	"tuner/pkg/build"
)

// main runs in three phases:
//
// 1. Startup (cold path): build info, PortAudio, CLI parsing, one-off
// commands such as device listing.
//
// 2. Concurrent (hot path): input stream capture, the analysis loop,
// and result publishing, all running until a termination signal.
//
// 3. Shutdown (cold path): stop the loop, finalize the recording,
// release the audio device.
func main() {
	// ==================== STARTUP PHASE ====================

	build.Initialize()

	if err := audio.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer audio.Terminate()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		log.Fatal(err)
	}

	if lvl, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(lvl)
	}

	switch cfg.Command {
	case "list":
		if err := audio.ListDevices(); err != nil {
			log.Fatal(err)
		}
		return
	case "devices":
		id, err := tui.PickDevice()
		if err != nil {
			log.Fatal(err)
		}
		if id < 0 {
			return
		}
		cfg.Audio.InputDevice = id
	}

	// ==================== CONCURRENT PHASE ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	stream, err := audio.NewInputStream(audio.Settings{
		Device:     cfg.Audio.InputDevice,
		Channels:   cfg.Audio.Channels,
		SampleRate: cfg.Audio.SampleRate,
		BurstSize:  cfg.Audio.BurstSize,
		BufSecs:    cfg.Audio.BufSecs,
		LowLatency: cfg.Audio.LowLatency,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer stream.Close()

	driver, err := buildDriver(cfg, stream)
	if err != nil {
		log.Fatal(err)
	}

	var recorder *audio.Recorder
	if cfg.Recording.Enabled {
		recorder = audio.NewRecorder(stream.Channels(), stream.SampleRate())
		if err := recorder.Start(cfg.Recording.OutputFile); err != nil {
			log.Fatal(err)
		}
		stream.SetRecorder(recorder)
	}

	var publisher *udp.Publisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			log.Fatal(err)
		}
		publisher, err = udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, driver)
		if err != nil {
			log.Fatal(err)
		}
	}

	if err := driver.Start(); err != nil {
		log.Fatal(err)
	}
	if publisher != nil {
		publisher.Start()
	}

	applog.Infof("Tuner running on %s. Press Ctrl+C to stop.", stream.Name())

	<-done

	// ==================== SHUTDOWN PHASE ====================

	if publisher != nil {
		if err := publisher.Stop(); err != nil {
			applog.Warnf("Error stopping UDP publisher: %v", err)
		}
	}
	if err := driver.Close(); err != nil {
		applog.Warnf("Error stopping tuner: %v", err)
	}
	if recorder != nil {
		if err := recorder.Stop(); err != nil {
			applog.Warnf("Error stopping recording: %v", err)
		} else {
			fmt.Printf("\nRecording saved to: %s\n", cfg.Recording.OutputFile)
		}
	}
}

// buildDriver assembles the estimator chain and transports around an
// opened input stream. The stream's negotiated sample rate feeds the
// pitch estimator, so the stream must exist first.
func buildDriver(cfg *config.Config, stream *audio.InputStream) (*tuner.Driver, error) {
	pcfg := pitch.DefaultConfig(stream.SampleRate())
	pcfg.FMin = cfg.Pitch.FMin
	pcfg.FMax = cfg.Pitch.FMax
	if cfg.Pitch.MinThresh > 0 {
		pcfg.MinThresh = cfg.Pitch.MinThresh
	}
	if cfg.Pitch.AbsThresh > 0 {
		pcfg.AbsThresh = cfg.Pitch.AbsThresh
	}
	if cfg.Pitch.OnsetThresh > 0 {
		pcfg.OnsetThresh = cfg.Pitch.OnsetThresh
	}
	if cfg.Pitch.OffsetThresh > 0 {
		pcfg.OffsetThresh = cfg.Pitch.OffsetThresh
	}
	if cfg.Pitch.OffsetThresh2 > 0 {
		pcfg.OffsetThresh2 = cfg.Pitch.OffsetThresh2
	}
	if cfg.Pitch.HistLen > 0 {
		pcfg.HistLen = cfg.Pitch.HistLen
	}

	pe, err := pitch.NewEstimator(pcfg)
	if err != nil {
		return nil, err
	}

	ie, err := intonation.NewEstimator(cfg.Intonation.HistLen)
	if err != nil {
		return nil, err
	}
	if cfg.Intonation.ScaleFile != "" {
		s, err := scale.Load(cfg.Intonation.ScaleFile)
		if err != nil {
			return nil, err
		}
		ie.SetScale(s)
	}
	if cfg.Intonation.TuningNote != "" {
		note, err := ie.Scale().NoteByName(cfg.Intonation.TuningNote)
		if err != nil {
			return nil, err
		}
		if err := ie.SetTuningNote(note.Index); err != nil {
			return nil, err
		}
	}
	if err := ie.SetTuningPitch(cfg.Intonation.TuningPitch); err != nil {
		return nil, err
	}

	driver, err := tuner.NewDriver(stream, pe, ie, cfg.Tuner.Interval)
	if err != nil {
		return nil, err
	}

	if cfg.Spectrum.Enabled {
		win, err := spectrum.ParseWindowFunc(cfg.Spectrum.Window)
		if err != nil {
			return nil, err
		}
		proc, err := spectrum.NewProcessor(cfg.Spectrum.FFTSize, stream.SampleRate(), win)
		if err != nil {
			return nil, err
		}
		driver.SetSpectrum(proc)
	}

	if cfg.Transport.WebSocketEnabled {
		driver.AddTransport(transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr))
	}
	if cfg.Debug {
		driver.AddTransport(transport.NewLoggingTransport())
	}

	return driver, nil
}
