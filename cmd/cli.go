// SPDX-License-Identifier: MIT

// Package cmd parses the command line into a validated configuration and
// wires the capture pipeline together.
package cmd

import (
	"fmt"
	"os"
	"time"

	"scope/internal/config"
	"scope/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected on the command line.
const (
	CommandRun    = "run"
	CommandList   = "list"
	CommandReplay = "replay"
)

// Options is the outcome of ParseArgs.
type Options struct {
	Command    string
	Config     *config.Config
	ConfigPath string
	TUIMode    bool   // live meter for run, device picker for list
	ReplayFile string // WAV file for replay
	Realtime   bool   // pace replay at the file's sample rate
}

// flagValues receives flag values before they are merged over the file.
type flagValues struct {
	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	gate            bool
	gateThreshold   float64
	busCapacity     int
	buckets         int
	window          time.Duration
	decay           string
	decayTime       time.Duration
	wsEnabled       bool
	wsAddress       string
	udpEnabled      bool
	udpTarget       string
	logFrames       bool
	verbose         bool
	logLevel        string
}

// ParseArgs parses os.Args.
func ParseArgs() (*Options, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{Command: CommandRun, TUIMode: true}
	var fv flagValues
	noTUI := false

	// load runs before every command: file, environment, then changed flags.
	load := func(cmd *cobra.Command) error {
		cfg, err := config.LoadConfig(options.ConfigPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg, &fv)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid command line options: %w", err)
		}
		options.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			options.TUIMode = !noTUI
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s\n", buildInfo))

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			options.TUIMode = interactive(cmd)
			return nil
		},
	}
	listCmd.Flags().BoolP("interactive", "i", false,
		"Pick the input device and sample rate interactively, then start capturing")
	rootCmd.AddCommand(listCmd)

	replayCmd := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Feed a WAV file through the scope instead of a live device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandReplay
			options.ReplayFile = args[0]
			options.TUIMode = false
			return nil
		},
	}
	replayCmd.Flags().BoolVar(&options.Realtime, "realtime", true,
		"Pace the file at its sample rate (false publishes as fast as possible)")
	rootCmd.AddCommand(replayCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&options.ConfigPath, "config", "f", "",
		"YAML configuration file (default ./"+config.DefaultPath+" when present)")

	// Audio Device Configuration
	pf.IntVarP(&fv.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&fv.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture, downmixed to mono")
	pf.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&fv.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&fv.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	pf.BoolVar(&fv.gate, "gate", false, "Silence buffers below the gate threshold")
	pf.Float64Var(&fv.gateThreshold, "gate-threshold", config.DefaultGateThreshold,
		"Noise gate threshold, 0.0-1.0 of full scale")

	// Scope Configuration
	pf.IntVar(&fv.busCapacity, "bus-capacity", config.DefaultBusCapacity,
		"Samples buffered between the audio callback and the scope")
	pf.IntVar(&fv.buckets, "buckets", config.DefaultBuckets, "Time buckets per view")
	pf.DurationVar(&fv.window, "window", config.DefaultWindow, "Time span of the views")
	pf.StringVar(&fv.decay, "decay", "exponential", "Peak-hold decay: off, exponential or linear")
	pf.DurationVar(&fv.decayTime, "decay-time", 300*time.Millisecond, "Peak-hold decay time")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run without the live meter")

	// Transport Configuration
	pf.BoolVar(&fv.wsEnabled, "ws", false, "Serve frames over WebSocket")
	pf.StringVar(&fv.wsAddress, "ws-addr", ":8080", "WebSocket listen address")
	pf.BoolVar(&fv.udpEnabled, "udp", false, "Send peak packets over UDP")
	pf.StringVar(&fv.udpTarget, "udp-target", "127.0.0.1:9090", "UDP packet destination")
	pf.BoolVar(&fv.logFrames, "log-frames", false, "Log a summary of every frame")

	// Debug Configuration
	pf.BoolVarP(&fv.verbose, "verbose", "v", false, "Show verbose output")
	pf.StringVar(&fv.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	// --help and --version return without running a command.
	if options.Config == nil {
		return nil, nil
	}
	return options, nil
}

func interactive(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("interactive")
	return v
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, fv *flagValues) {
	set := cmd.Flags().Changed

	if set("device") {
		cfg.Audio.InputDevice = fv.device
	}
	if set("channels") {
		cfg.Audio.InputChannels = fv.channels
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.framesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if set("gate") {
		cfg.Audio.GateEnabled = fv.gate
	}
	if set("gate-threshold") {
		cfg.Audio.GateThreshold = fv.gateThreshold
		cfg.Audio.GateEnabled = true
	}
	if set("bus-capacity") {
		cfg.Bus.Capacity = fv.busCapacity
	}
	if set("buckets") {
		cfg.Scope.Buckets = fv.buckets
	}
	if set("window") {
		cfg.Scope.Window = fv.window
	}
	if set("decay") {
		cfg.Scope.Decay = fv.decay
	}
	if set("decay-time") {
		cfg.Scope.DecayTime = fv.decayTime
	}
	if set("ws") {
		cfg.Transport.WebSocketEnabled = fv.wsEnabled
	}
	if set("ws-addr") {
		cfg.Transport.WebSocketAddress = fv.wsAddress
		cfg.Transport.WebSocketEnabled = true
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = fv.udpEnabled
	}
	if set("udp-target") {
		cfg.Transport.UDPTargetAddress = fv.udpTarget
		cfg.Transport.UDPEnabled = true
	}
	if set("log-frames") {
		cfg.Transport.LogFrames = fv.logFrames
	}
	if set("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if set("verbose") {
		cfg.Debug = fv.verbose
	}
}
