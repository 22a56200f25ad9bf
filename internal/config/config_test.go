// ABOUTME: Tests for command-line configuration
// ABOUTME: Parses isolated flag sets and checks validation sentinels
package config

import (
	"errors"
	"flag"
	"io"
	"testing"
	"time"
)

func parse(args ...string) (*Config, error) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return Parse(fs, args)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parse()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.BufferSeconds != 10 || cfg.SampleRate != 48000 || !cfg.AGC {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.DiscoverTimeout != 10*time.Second {
		t.Errorf("expected 10s discovery, got %v", cfg.DiscoverTimeout)
	}
}

func TestParseNormalizesMode(t *testing.T) {
	cfg, err := parse("-server", "localhost:8000", "-mode", "usb", "-frequency", "14200000")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.Mode != "USB" {
		t.Errorf("expected USB, got %s", cfg.Mode)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"log level", []string{"-log-level", "loud"}, ErrInvalidLogLevel},
		{"buffer", []string{"-buffer-seconds", "0"}, ErrInvalidBuffer},
		{"sample rate", []string{"-sample-rate", "-1"}, ErrInvalidSampleRate},
		{"frequency", []string{"-frequency", "3e9"}, ErrInvalidTuning},
		{"mode", []string{"-mode", "WFM"}, ErrInvalidTuning},
		{"bandwidth", []string{"-bandwidth", "300000"}, ErrInvalidTuning},
		{"discovery", []string{"-discover-timeout", "0s"}, ErrDiscoverTimeoutPositive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDiscoverTimeoutIgnoredWithServer(t *testing.T) {
	if _, err := parse("-server", "host:1", "-discover-timeout", "0s"); err != nil {
		t.Errorf("expected explicit server to skip discovery checks, got %v", err)
	}
}

func TestClientName(t *testing.T) {
	cfg := &Config{Name: "shack"}
	if cfg.ClientName() != "shack" {
		t.Errorf("expected explicit name, got %s", cfg.ClientName())
	}
	cfg.Name = ""
	if cfg.ClientName() == "" {
		t.Error("expected a default name")
	}
}
