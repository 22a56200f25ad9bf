// Package config provides command-line configuration for the websdr player.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidLogLevel is returned when log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidBuffer is returned when the playout buffer size is not positive.
	ErrInvalidBuffer = errors.New("buffer seconds must be positive")
	// ErrInvalidSampleRate is returned when the output sample rate is not positive.
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidTuning is returned when frequency, mode or bandwidth are out of range.
	ErrInvalidTuning = errors.New("invalid tuning")
	// ErrDiscoverTimeoutPositive is returned when discovery is needed but has no time budget.
	ErrDiscoverTimeoutPositive = errors.New("discover timeout must be positive")
)

// Config holds the application configuration.
type Config struct {
	Server          string
	Secure          bool
	Name            string
	LogLevel        string
	LogFile         string
	NoTUI           bool
	NoAudio         bool
	BufferSeconds   float64
	SampleRate      int
	Volume          float64
	Squelch         float64
	AGC             bool
	AGCTarget       float64
	Record          string
	Frequency       float64
	Gain            float64
	Mode            string
	Bandwidth       int
	DiscoverTimeout time.Duration
}

// New parses the process command line.
func New() (*Config, error) {
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse registers the flags on fs, parses args and validates the result.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Server, "server", "", "Server address host:port (default: discover via mDNS)")
	fs.BoolVar(&cfg.Secure, "tls", false, "Use wss:// instead of ws://")
	fs.StringVar(&cfg.Name, "name", "", "Client name (default: hostname-websdr)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", "websdr-player.log", "Log file path")
	fs.BoolVar(&cfg.NoTUI, "no-tui", false, "Disable TUI, use streaming logs instead")
	fs.BoolVar(&cfg.NoAudio, "no-audio", false, "Render playout without an audio device")
	fs.Float64Var(&cfg.BufferSeconds, "buffer-seconds", 10, "Playout buffer capacity in seconds")
	fs.IntVar(&cfg.SampleRate, "sample-rate", 48000, "Audio device sample rate")
	fs.Float64Var(&cfg.Volume, "volume", 1, "Output volume (0-1)")
	fs.Float64Var(&cfg.Squelch, "squelch", 0, "Squelch threshold, 0 disables")
	fs.BoolVar(&cfg.AGC, "agc", true, "Enable automatic gain control")
	fs.Float64Var(&cfg.AGCTarget, "agc-target", 0.3, "AGC target level (0.01-1)")
	fs.StringVar(&cfg.Record, "record", "", "Record received audio to this WAV file")
	fs.Float64Var(&cfg.Frequency, "frequency", 0, "Start the receiver tuned to this frequency in Hz")
	fs.Float64Var(&cfg.Gain, "gain", 40, "Receiver gain in dB")
	fs.StringVar(&cfg.Mode, "mode", "", "Demodulation mode (AM, FM, USB, LSB, CW)")
	fs.IntVar(&cfg.Bandwidth, "bandwidth", 0, "Demodulator bandwidth in Hz")
	fs.DurationVar(&cfg.DiscoverTimeout, "discover-timeout", 10*time.Second, "How long to browse for a server")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %s (must be debug, info, warn, or error)", ErrInvalidLogLevel, c.LogLevel)
	}

	if c.BufferSeconds <= 0 {
		return fmt.Errorf("%w: %.2f", ErrInvalidBuffer, c.BufferSeconds)
	}

	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, c.SampleRate)
	}

	if c.Frequency < 0 || c.Frequency > protocol.MaxFrequency {
		return fmt.Errorf("%w: frequency %.0f Hz", ErrInvalidTuning, c.Frequency)
	}

	if c.Mode != "" {
		mode, err := protocol.NormalizeDemodMode(c.Mode)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTuning, err)
		}
		c.Mode = mode
	}

	if c.Bandwidth < 0 || c.Bandwidth > protocol.MaxBandwidth {
		return fmt.Errorf("%w: bandwidth %d Hz", ErrInvalidTuning, c.Bandwidth)
	}

	if c.Server == "" && c.DiscoverTimeout <= 0 {
		return ErrDiscoverTimeoutPositive
	}

	return nil
}

// ClientName returns Name or a hostname-derived default.
func (c *Config) ClientName() string {
	if c.Name != "" {
		return c.Name
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-websdr", strings.ToLower(hostname))
}
