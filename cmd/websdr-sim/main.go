// ABOUTME: Entry point for the synthetic WebSDR server
// ABOUTME: Parses CLI flags, advertises via mDNS and streams test frames
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/h1sdr/websdr-go/internal/discovery"
	"github.com/h1sdr/websdr-go/internal/simulator"
	"github.com/sirupsen/logrus"
)

var (
	port       = flag.Int("port", 8073, "WebSocket server port")
	name       = flag.String("name", "", "Server friendly name (default: hostname-websdr-sim)")
	logFile    = flag.String("log-file", "websdr-sim.log", "Log file path")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	sampleRate = flag.Int("sample-rate", simulator.DefaultSampleRate, "Audio sample rate")
	block      = flag.Duration("block", simulator.DefaultAudioBlock, "Audio frame duration")
	fftSize    = flag.Int("fft-size", simulator.DefaultFFTSize, "Spectrum bins per line")
	frequency  = flag.Float64("frequency", simulator.DefaultFrequency, "Initial receiver frequency in Hz")
	tone       = flag.Float64("tone", simulator.DefaultToneFrequency, "Audio test tone in Hz")
)

func main() {
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(io.MultiWriter(os.Stdout, f))

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-websdr-sim", hostname)
	}

	logger.WithFields(logrus.Fields{
		"name": serverName,
		"port": *port,
		"log":  *logFile,
	}).Info("Starting WebSDR simulator, press Ctrl-C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*noMDNS {
		disc := discovery.NewManager(discovery.Config{
			ServiceName: serverName,
			Port:        *port,
			Logger:      logger,
		})
		if err := disc.Advertise(); err != nil {
			logger.WithError(err).Warn("mDNS advertisement failed")
		}
		defer disc.Stop()
	}

	sim := simulator.New(simulator.Config{
		SampleRate:    *sampleRate,
		AudioBlock:    *block,
		FFTSize:       *fftSize,
		Frequency:     *frequency,
		ToneFrequency: *tone,
		PingInterval:  10 * time.Second,
		Logger:        logger,
	})

	if err := sim.ListenAndServe(ctx, fmt.Sprintf(":%d", *port)); err != nil {
		logger.WithError(err).Fatal("Simulator error")
	}
	logger.Info("Simulator stopped")
}
