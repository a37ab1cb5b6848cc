// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"time"

	"tuner/internal/config"
	"tuner/pkg/build"

	"github.com/spf13/cobra"
)

// ParseArgs builds the CLI, loads the YAML configuration, and overlays
// any flags the user set explicitly. The returned config is validated.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		configPath  string
		deviceID    int
		channels    int
		sampleRate  float64
		burstSize   int
		bufSecs     float64
		lowLatency  bool
		fmin        float64
		fmax        float64
		scaleFile   string
		tuningNote  string
		tuningPitch float64
		record      bool
		outputFile  string
		verbose     bool
	)

	command := ""

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time microphone pitch tuner",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Pick an input device interactively",
		Run: func(cmd *cobra.Command, args []string) {
			command = "devices"
		},
	}
	rootCmd.AddCommand(devicesCmd)

	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configPath, "config", "",
		"Path to a YAML configuration file")

	// Audio capture
	flags.IntVarP(&deviceID, "device", "d", -1,
		"Input device ID. Use the 'list' command to see available devices.")
	flags.IntVarP(&channels, "channels", "c", 0,
		"Number of channels to capture (0 uses the device maximum)")
	flags.Float64VarP(&sampleRate, "sample-rate", "s", 0,
		"Sample rate in Hertz (0 uses the device default)")
	flags.IntVarP(&burstSize, "burst-size", "b", 512,
		"Frames delivered per capture callback (affects latency)")
	flags.Float64Var(&bufSecs, "buf-secs", 0.1,
		"Length of the rolling analysis buffer in seconds")
	flags.BoolVarP(&lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time capture")

	// Pitch and intonation
	flags.Float64Var(&fmin, "fmin", 60,
		"Lower bound of the pitch search range in Hz")
	flags.Float64Var(&fmax, "fmax", 1500,
		"Upper bound of the pitch search range in Hz")
	flags.StringVar(&scaleFile, "scale", "",
		"Path to a YAML scale definition (default is twelve-tone equal temperament)")
	flags.StringVar(&tuningNote, "tuning-note", "A",
		"Name of the reference note within the scale")
	flags.Float64VarP(&tuningPitch, "tuning-pitch", "p", 440,
		"Reference frequency of the tuning note in Hz")

	// Recording
	flags.BoolVarP(&record, "record", "r", false,
		"Record the input stream to a WAV file while tuning")
	flags.StringVarP(&outputFile, "output", "o", "",
		"Recording file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	flags.BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	cfg.Command = command

	// Flags the user set explicitly win over both file and defaults.
	if flags.Changed("device") {
		cfg.Audio.InputDevice = deviceID
	}
	if flags.Changed("channels") {
		cfg.Audio.Channels = channels
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = sampleRate
	}
	if flags.Changed("burst-size") {
		cfg.Audio.BurstSize = burstSize
	}
	if flags.Changed("buf-secs") {
		cfg.Audio.BufSecs = bufSecs
	}
	if flags.Changed("low-latency") {
		cfg.Audio.LowLatency = lowLatency
	}
	if flags.Changed("fmin") {
		cfg.Pitch.FMin = fmin
	}
	if flags.Changed("fmax") {
		cfg.Pitch.FMax = fmax
	}
	if flags.Changed("scale") {
		cfg.Intonation.ScaleFile = scaleFile
	}
	if flags.Changed("tuning-note") {
		cfg.Intonation.TuningNote = tuningNote
	}
	if flags.Changed("tuning-pitch") {
		cfg.Intonation.TuningPitch = tuningPitch
	}
	if flags.Changed("record") {
		cfg.Recording.Enabled = record
	}
	if flags.Changed("output") {
		cfg.Recording.OutputFile = outputFile
	}
	if verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	if cfg.Recording.Enabled && cfg.Recording.OutputFile == "" {
		cfg.Recording.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
