// ABOUTME: TOML configuration files for the clock and the time server
// ABOUTME: File values act as defaults that command line flags override
package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// File is the layout of a configuration file
type File struct {
	Client Client `toml:"client,omitempty"`
	Server Server `toml:"server,omitempty"`
}

// Client configures the clock
type Client struct {
	Server           string `toml:"server,omitempty"`
	Path             string `toml:"path,omitempty"`
	Secure           bool   `toml:"secure,omitempty"`
	LogFile          string `toml:"log_file,omitempty"`
	NoTUI            bool   `toml:"no_tui,omitempty"`
	MetricsAddr      string `toml:"metrics_address,omitempty"`
	RequestTimeoutMs int    `toml:"request_timeout_ms,omitempty"`
}

// Server configures the time server
type Server struct {
	Host              string `toml:"host,omitempty"`
	Port              int    `toml:"port,omitempty"`
	Name              string `toml:"name,omitempty"`
	Path              string `toml:"path,omitempty"`
	StaticDir         string `toml:"static_dir,omitempty"`
	CertFile          string `toml:"cert_file,omitempty"`
	KeyFile           string `toml:"key_file,omitempty"`
	NTPHost           string `toml:"ntp_host,omitempty"`
	NTPTimeoutMs      int    `toml:"ntp_timeout_ms,omitempty"`
	ReportUncertainty bool   `toml:"report_uncertainty,omitempty"`
	MDNS              bool   `toml:"mdns,omitempty"`
	NoTUI             bool   `toml:"no_tui,omitempty"`
	LogFile           string `toml:"log_file,omitempty"`
	Debug             bool   `toml:"debug,omitempty"`
}

// Load reads a configuration file. Unknown keys are an error.
func Load(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	var cfg File
	err = toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&cfg)
	if err != nil {
		return File{}, fmt.Errorf("failed to decode configuration %s: %w", path, err)
	}

	return cfg, nil
}

// Flags returns the configured values keyed by clock flag name
func (c Client) Flags() map[string]string {
	v := values{}
	v.str("server", c.Server)
	v.str("path", c.Path)
	v.boolean("secure", c.Secure)
	v.str("log-file", c.LogFile)
	v.boolean("no-tui", c.NoTUI)
	v.str("metrics-addr", c.MetricsAddr)
	v.millis("request-timeout", c.RequestTimeoutMs)
	return v
}

// Flags returns the configured values keyed by server flag name
func (s Server) Flags() map[string]string {
	v := values{}
	v.str("host", s.Host)
	if s.Port != 0 {
		v["port"] = strconv.Itoa(s.Port)
	}
	v.str("name", s.Name)
	v.str("path", s.Path)
	v.str("static-dir", s.StaticDir)
	v.str("cert", s.CertFile)
	v.str("key", s.KeyFile)
	v.str("ntp", s.NTPHost)
	v.millis("ntp-timeout", s.NTPTimeoutMs)
	v.boolean("report-uncertainty", s.ReportUncertainty)
	v.boolean("mdns", s.MDNS)
	v.boolean("no-tui", s.NoTUI)
	v.str("log-file", s.LogFile)
	v.boolean("debug", s.Debug)
	return v
}

// Overlay sets every flag in values that was not given on the command line
func Overlay(fs *flag.FlagSet, values map[string]string) error {
	given := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		given[f.Name] = true
	})

	for name, value := range values {
		if given[name] || fs.Lookup(name) == nil {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("invalid configuration value for %s: %w", name, err)
		}
	}

	return nil
}

type values map[string]string

func (v values) str(name, s string) {
	if s != "" {
		v[name] = s
	}
}

func (v values) boolean(name string, b bool) {
	if b {
		v[name] = "true"
	}
}

func (v values) millis(name string, ms int) {
	if ms != 0 {
		v[name] = strconv.Itoa(ms) + "ms"
	}
}
