// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"voiceviz/internal/config"
	"voiceviz/pkg/build"

	"github.com/spf13/cobra"
)

type cliFlags struct {
	configPath      string
	deviceID        int
	sampleRate      float64
	framesPerBuffer int
	channels        int
	lowLatency      bool
	file            string
	addr            string
	udpTarget       string
	logFile         string
	noTUI           bool
	pick            bool
	verbose         bool
}

// ParseArgs parses args (without the program name) into a configuration.
// It returns a nil configuration when cobra handled the invocation itself,
// as with --help or --version.
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	var (
		flags   cliFlags
		options *config.Config
	)

	load := func(cmd *cobra.Command) error {
		cfg, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		flags.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		options = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := load(cmd); err != nil {
				return err
			}
			options.Command = "list"
			options.TUIMode = false
			return nil
		},
	}
	rootCmd.AddCommand(listCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "",
		"Path to a YAML configuration file (default ./config.yaml if present)")

	// Audio Device Configuration
	pf.IntVarP(&flags.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture (downmixed to mono)")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	pf.StringVarP(&flags.file, "file", "f", "",
		"Replay a WAV file instead of capturing from a microphone")
	pf.BoolVarP(&flags.pick, "pick", "p", false,
		"Choose the input device interactively before starting")

	// Transport Configuration
	pf.StringVarP(&flags.addr, "addr", "a", config.DefaultWebSocketAddress,
		"Listen address for the WebSocket and HTTP endpoints")
	pf.StringVar(&flags.udpTarget, "udp", "",
		"Publish state packets to this UDP address (enables UDP)")

	// Display and Debug Configuration
	pf.BoolVar(&flags.noTUI, "no-tui", false,
		"Run headless without the terminal visualizer")
	pf.StringVar(&flags.logFile, "log-file", "",
		"Write logs to this file (default voiceviz.log while the TUI runs)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", config.DefaultVerbosity,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// apply copies explicitly set flags over file and environment values.
func (f *cliFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("device") {
		cfg.Audio.InputDevice = f.deviceID
	}
	if changed("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("file") {
		cfg.Audio.File = f.file
	}
	if changed("addr") {
		cfg.Transport.WebSocketEnabled = f.addr != ""
		cfg.Transport.WebSocketAddress = f.addr
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = f.udpTarget != ""
		cfg.Transport.UDPTargetAddress = f.udpTarget
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if f.noTUI {
		cfg.TUIMode = false
	}
	if f.verbose {
		cfg.Debug = true
	}
	cfg.PickDevice = f.pick
}
