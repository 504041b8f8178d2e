// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"voiceviz/cmd"
	"voiceviz/internal/analysis"
	"voiceviz/internal/audio"
	"voiceviz/internal/config"
	"voiceviz/internal/engine"
	applog "voiceviz/internal/log"
	"voiceviz/internal/sched"
	"voiceviz/internal/silence"
	"voiceviz/internal/transport"
	"voiceviz/internal/transport/udp"
	"voiceviz/internal/tui"
	"voiceviz/pkg/build"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

const defaultLogFile = "voiceviz.log"

// main is the entry point for the visualizer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configure logging
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Run the frame loop that drives the engine
//   - Serve WebSocket clients and publish UDP packets
//   - Render the terminal visualizer
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or the user quitting
//   - Release the microphone and close transports
//   - Terminate PortAudio
func main() {
	if err := run(); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build info: %v, using defaults", err)
	}

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg == nil {
		// --help or --version
		return nil
	}

	closeLog, err := configureLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	// PortAudio is optional when replaying a file.
	if err := audio.Initialize(); err != nil {
		if cfg.Audio.File == "" {
			return fmt.Errorf("failed to initialize audio: %w", err)
		}
		applog.Warnf("PortAudio unavailable, continuing with file source: %v", err)
	} else {
		defer audio.Terminate()
	}

	if cfg.Command == "list" {
		return audio.ListDevices(os.Stdout)
	}

	if cfg.PickDevice && cfg.Audio.File == "" {
		if err := pickDevice(cfg); err != nil {
			return err
		}
	}

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	loop := sched.NewLoop(cfg.FrameInterval())
	eng := engine.New(loop, source, silence.Config{
		Window:    cfg.Visualizer.SilenceWindow,
		Threshold: cfg.Visualizer.SoundThreshold,
	})

	if cfg.Debug {
		eng.AddTransport(transport.NewLoggingTransport(int(cfg.Visualizer.RefreshRate)))
	}

	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, eng)
		eng.AddTransport(ws)
		g.Go(ws.ListenAndServe)
	}

	var publisher *udp.UDPPublisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		publisher, err = udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, eng)
		if err != nil {
			sender.Close()
			return err
		}
		publisher.Start()
	}

	if cfg.TUIMode {
		model := tui.NewVisualizerModel(eng, cfg.Visualizer.SoundThreshold, cfg.Visualizer.SilenceWindow.String())
		p := tea.NewProgram(model, tea.WithAltScreen())
		eng.AddTransport(tui.NewProgramTransport(p))

		g.Go(func() error {
			_, err := p.Run()
			stop()
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			p.Quit()
			return nil
		})
	} else {
		fmt.Printf("%s listening, press Ctrl+C to exit.\n", build.GetBuildFlags().Name)
	}

	// The engine is only touched from the loop goroutine, including the
	// final Close once Run has returned.
	g.Go(func() error {
		err := loop.Run(gctx)
		eng.Close()
		return err
	})

	eng.RequestStart()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	err = g.Wait()

	if publisher != nil {
		if cerr := publisher.Close(); cerr != nil {
			applog.Warnf("Error closing UDP publisher: %v", cerr)
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// configureLogging applies the log level and, while the TUI owns the
// terminal, redirects output to a file.
func configureLogging(cfg *config.Config) (func(), error) {
	if level, ok := applog.ParseLevel(cfg.EffectiveLogLevel()); ok {
		applog.SetLevel(level)
	}

	path := cfg.LogFile
	if path == "" && cfg.TUIMode {
		path = defaultLogFile
	}
	if path == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	applog.SetOutput(f)

	return func() {
		applog.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

func pickDevice(cfg *config.Config) error {
	devices, err := audio.HostDevices()
	if err != nil {
		return err
	}
	sel, err := tui.PickDevice(devices)
	if err != nil {
		return err
	}
	applog.Infof("Selected device %d (%s) at %.0f Hz", sel.DeviceID, sel.Name, sel.SampleRate)
	cfg.Audio.InputDevice = sel.DeviceID
	cfg.Audio.SampleRate = sel.SampleRate
	return nil
}

func newSource(cfg *config.Config) (audio.Source, error) {
	window, err := analysis.ParseWindowFunc(cfg.Analysis.FFTWindow)
	if err != nil {
		return nil, err
	}
	acfg := analysis.AnalyzerConfig{
		Window:      window,
		Smoothing:   cfg.Analysis.Smoothing,
		MinDecibels: cfg.Analysis.MinDecibels,
		MaxDecibels: cfg.Analysis.MaxDecibels,
	}
	newTransform := func() (analysis.Transform, error) {
		a, err := analysis.NewAnalyzer(acfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	if cfg.Audio.File != "" {
		return audio.NewFileSource(cfg.Audio.File, cfg.Audio.FramesPerBuffer, newTransform), nil
	}

	return audio.NewPortAudioSource(audio.PortAudioConfig{
		DeviceID:        cfg.Audio.InputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		Channels:        cfg.Audio.InputChannels,
		LowLatency:      cfg.Audio.LowLatency,
	}, newTransform), nil
}
