// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"scope/cmd"
	"scope/internal/audio"
	applog "scope/internal/log"
	"scope/internal/tui"
	"scope/pkg/build"

	tea "github.com/charmbracelet/bubbletea"
)

// main is the entry point for the audio scope.
// The program flow is divided into three phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands (device listing)
//
// 2. Concurrent Phase (Hot Path):
//   - Build the bus, scope and transports
//   - Start the capture engine or replay a WAV file
//   - Run the scope refresh loop and the live meter
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the stream and close every transport
func main() {
	if err := run(); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build information incomplete: %v", err)
	}

	// One thread for the audio callback, one for the scope and I/O.
	runtime.GOMAXPROCS(2)

	options, err := cmd.ParseArgs()
	if err != nil {
		return err
	}
	if options == nil { // --help or --version
		return nil
	}
	cfg := options.Config
	applog.SetLevel(cfg.EffectiveLogLevel())
	applog.Debugf("%s", build.GetBuildFlags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch options.Command {
	case cmd.CommandReplay:
		return replay(ctx, options)
	case cmd.CommandList:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()

		if !options.TUIMode {
			return audio.ListDevices(os.Stdout)
		}
		sel, err := tui.StartDeviceListUI()
		if err != nil || !sel.Confirmed {
			return err
		}
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
		options.TUIMode = true
		return capture(ctx, options)
	default:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		return capture(ctx, options)
	}
}

// capture runs the live pipeline on the configured input device until ctx
// is done or the meter is closed. PortAudio must be initialized.
func capture(ctx context.Context, options *cmd.Options) error {
	// ==================== CONCURRENT PHASE (Hot Path) ====================

	cfg := options.Config
	p, err := cmd.NewPipeline(cfg)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	engine, err := audio.NewEngine(cfg.Audio, p.Bus, p.Meter)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			applog.Errorf("Error closing audio engine: %v", err)
		}
		st := engine.Stats()
		applog.Infof("Captured %d blocks (%d gated), bus %+v", st.Blocks, st.Gated, p.Bus.Stats())
	}()

	// CRITICAL: Start of real-time audio processing. From here on
	// PortAudio calls the engine from its own thread.
	if err := engine.StartInputStream(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	if options.TUIMode {
		title := fmt.Sprintf("%s • %d channel(s)", build.GetBuildFlags().Name, engine.Channels())
		model := tui.NewMeterModel(title, p.Meter, p.Scope, cfg.Scope.RefreshInterval)
		prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

		// The meter owns the terminal; log lines are printed after it exits.
		release := applog.Hold()
		_, err := prog.Run()
		release()
		if err != nil && ctx.Err() == nil {
			cancel()
			<-done
			return fmt.Errorf("meter UI failed: %w", err)
		}
		cancel()
	} else {
		fmt.Printf("Capturing, press Ctrl+C to stop. '%s --help' for usage information.\n",
			build.GetBuildFlags().Name)
	}

	// Block until termination signal is received
	err = <-done

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if stopErr := engine.StopInputStream(); stopErr != nil {
		applog.Errorf("Error stopping input stream: %v", stopErr)
	}
	return err
}

// replay feeds a WAV file through the pipeline instead of a device.
func replay(ctx context.Context, options *cmd.Options) error {
	p, err := cmd.NewPipeline(options.Config)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	st, err := p.Replay(ctx, options.ReplayFile, audio.ReplayOptions{
		BlockFrames: options.Config.Audio.FramesPerBuffer,
		Realtime:    options.Realtime,
	})
	cancel()
	if runErr := <-done; runErr != nil {
		applog.Errorf("Scope loop failed: %v", runErr)
	}
	if err != nil {
		return err
	}

	applog.Infof("Replayed %s: %d frames of %d-bit audio, %d channel(s) at %.0f Hz (%s)",
		options.ReplayFile, st.Frames, st.BitDepth, st.Channels, st.SampleRate, st.Duration)
	return nil
}

func closePipeline(p *cmd.Pipeline) {
	if err := p.Close(); err != nil {
		applog.Errorf("Error closing pipeline: %v", err)
	}
}
