// ABOUTME: Entry point for the WebSDR player
// ABOUTME: Parses CLI flags, connects to a receiver and plays its audio stream
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/h1sdr/websdr-go/internal/config"
	"github.com/h1sdr/websdr-go/internal/discovery"
	"github.com/h1sdr/websdr-go/internal/record"
	"github.com/h1sdr/websdr-go/internal/ui"
	"github.com/h1sdr/websdr-go/internal/version"
	"github.com/h1sdr/websdr-go/pkg/audio/output"
	"github.com/h1sdr/websdr-go/pkg/playout"
	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/h1sdr/websdr-go/pkg/transport"
	"github.com/h1sdr/websdr-go/pkg/websdr"
	"github.com/sirupsen/logrus"
)

// rfSampleRate is requested when -frequency starts the receiver
const rfSampleRate = 2.4e6

func main() {
	cfg, err := config.New()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	useTUI := !cfg.NoTUI

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	logger := logrus.New()
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if useTUI {
		// TUI mode: log only to file
		logger.SetOutput(f)
	} else {
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	name := cfg.ClientName()
	logger.WithFields(logrus.Fields{
		"name":    name,
		"version": version.Version,
		"log":     cfg.LogFile,
	}).Info("Starting WebSDR player")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, name, logger, useTUI); err != nil {
		logger.WithError(err).Error("Player failed")
		if !useTUI {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
	logger.Info("Player stopped")
}

func run(ctx context.Context, cfg *config.Config, name string, logger *logrus.Logger, useTUI bool) error {
	serverAddr := cfg.Server
	var paths map[protocol.ChannelKind]string
	if serverAddr == "" {
		logger.WithField("timeout", cfg.DiscoverTimeout).Info("Starting server discovery")
		disc := discovery.NewManager(discovery.Config{ServiceName: name, Logger: logger})
		dctx, cancel := context.WithTimeout(ctx, cfg.DiscoverTimeout)
		server, err := disc.Discover(dctx)
		cancel()
		disc.Stop()
		if err != nil {
			return err
		}
		serverAddr = server.Address()
		paths = server.Paths
		logger.WithFields(logrus.Fields{
			"server": server.Name,
			"addr":   serverAddr,
		}).Info("Discovered server")
	}

	var tui *ui.TUI
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tui = ui.New(controls, ui.Initial{Volume: cfg.Volume, Squelch: cfg.Squelch, AGC: cfg.AGC})
		tui.Update(ui.StatusMsg{ServerName: serverAddr})
	}
	updateTUI := func(msg ui.StatusMsg) {
		if tui != nil {
			tui.Update(msg)
		}
	}

	var taps []websdr.Tap
	if cfg.Record != "" {
		rec, err := record.Create(cfg.Record, cfg.SampleRate)
		if err != nil {
			return err
		}
		rec.SetLogger(logger)
		defer func() {
			if err := rec.Close(); err != nil {
				logger.WithError(err).Warn("Closing recording failed")
			}
			logger.WithFields(logrus.Fields{
				"path":     cfg.Record,
				"duration": rec.Duration(),
			}).Info("Recording saved")
		}()
		taps = append(taps, rec)
	}

	var rateWarned atomic.Bool
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	client, err := websdr.New(websdr.Config{
		ServerAddr: serverAddr,
		Secure:     cfg.Secure,
		Paths:      paths,
		Header:     header,
		Playout: playout.Config{
			SampleRate:      cfg.SampleRate,
			CapacitySeconds: cfg.BufferSeconds,
			Squelch:         cfg.Squelch,
			DisableAGC:      !cfg.AGC,
			AGCTarget:       cfg.AGCTarget,
		},
		Taps:   taps,
		Logger: logger,
		OnStatus: func(st transport.Status) {
			updateTUI(ui.StatusMsg{Channel: &st})
		},
		OnControl: func(kind protocol.ChannelKind, msg protocol.ControlMessage) {
			switch m := msg.(type) {
			case protocol.StatusUpdate:
				r, err := ui.ParseReceiver(m.Data)
				if err != nil {
					logger.WithError(err).Debug("Ignoring status update")
					return
				}
				updateTUI(ui.StatusMsg{Receiver: &r})
			case protocol.ServerError:
				updateTUI(ui.StatusMsg{Error: fmt.Sprintf("%s: %s", m.ErrorType, m.Message)})
			}
		},
		OnStats: func(st websdr.Stats) {
			if st.Playout.SampleRate != cfg.SampleRate && !rateWarned.Swap(true) {
				logger.WithFields(logrus.Fields{
					"stream": st.Playout.SampleRate,
					"device": cfg.SampleRate,
				}).Warn("Stream and device sample rates differ, audio will play at the wrong speed")
			}
			updateTUI(ui.StatusMsg{Stats: &st.Playout})
		},
	})
	if err != nil {
		return err
	}
	defer client.Close()

	client.SetVolume(cfg.Volume)

	out := openOutput(cfg, client.Source(), logger)
	defer out.Close()

	if err := client.Start(ctx); err != nil {
		return err
	}
	client.StartAudio()
	if cfg.Frequency > 0 {
		err := client.StartSDR(protocol.SDRConfig{
			Frequency:  cfg.Frequency,
			Gain:       cfg.Gain,
			SampleRate: rfSampleRate,
		})
		if err != nil {
			return err
		}
	}
	if cfg.Mode != "" {
		if err := client.SetDemod(cfg.Mode, cfg.Bandwidth); err != nil {
			return err
		}
	}

	if tui == nil {
		go logStats(ctx, client, logger)
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		return nil
	}

	go handleControls(ctx, client, controls, cfg.AGCTarget, logger)

	tuiErr := make(chan error, 1)
	go func() { tuiErr <- tui.Run() }()

	select {
	case <-controls.Quit:
		logger.Info("Received quit signal from TUI")
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-tuiErr:
		if err != nil {
			return fmt.Errorf("tui: %w", err)
		}
	}
	tui.Stop()
	return nil
}

// openOutput opens the audio device, or a headless clock when audio is
// disabled or the device cannot be opened
func openOutput(cfg *config.Config, src output.Source, logger logrus.FieldLogger) output.Output {
	if !cfg.NoAudio {
		dev := output.NewOto()
		dev.SetLogger(logger)
		err := dev.Open(cfg.SampleRate, 1, src)
		if err == nil {
			return dev
		}
		logger.WithError(err).Warn("Audio device unavailable, rendering headless")
	}

	clock := output.NewClock()
	if err := clock.Open(cfg.SampleRate, 1, src); err != nil {
		logger.WithError(err).Warn("Headless clock failed to start")
	}
	return clock
}

// handleControls applies key presses from the TUI
func handleControls(ctx context.Context, client *websdr.Client, controls *ui.Controls, agcTarget float64, logger logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-controls.Changes:
			logger.WithFields(logrus.Fields{
				"volume":  c.Volume,
				"squelch": c.Squelch,
				"agc":     c.AGC,
			}).Debug("Control change")
			client.SetVolume(c.Volume)
			client.SetSquelch(c.Squelch)
			client.SetAGC(c.AGC, agcTarget)
			if c.Frequency > 0 {
				if err := client.Tune(c.Frequency); err != nil {
					logger.WithError(err).Warn("Retune rejected")
				}
			}
		}
	}
}

// logStats periodically logs playout and channel health in streaming mode
func logStats(ctx context.Context, client *websdr.Client, logger logrus.FieldLogger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := client.Stats()
			fields := logrus.Fields{
				"state":     st.Playout.State.String(),
				"fill":      fmt.Sprintf("%.2fs", st.Playout.FillSeconds()),
				"underruns": st.Playout.Underruns,
				"overflows": st.Playout.Overflows,
				"gain":      fmt.Sprintf("%.2f", st.Playout.Gain),
			}
			for kind, ch := range st.Channels {
				fields[kind.String()] = ch.State.String()
			}
			logger.WithFields(fields).Info("Playout stats")
		}
	}
}
