// Package config loads daemon configuration and persists printer state.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mzyy94/airlabel/internal/dymo"
)

// Config is the daemon configuration.
type Config struct {
	ListenPort int    `yaml:"listen_port"`
	DataDir    string `yaml:"data_dir"`
	LogLevel   string `yaml:"log_level"`
	// Name advertised for the web API over mDNS. Empty disables advertisement.
	AdvertiseName string `yaml:"advertise_name"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Printer   PrinterConfig   `yaml:"printer"`
	Print     PrintConfig     `yaml:"print"`
}

type DiscoveryConfig struct {
	ServiceType    string        `yaml:"service_type"`
	Domain         string        `yaml:"domain"`
	VendorToken    string        `yaml:"vendor_token"`
	Timeout        time.Duration `yaml:"timeout"`
	HotStartWindow time.Duration `yaml:"hot_start_window"`
}

type PrinterConfig struct {
	// Static is a host:port added without discovery.
	Static           string        `yaml:"static"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollInitialDelay time.Duration `yaml:"poll_initial_delay"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	IOTimeout        time.Duration `yaml:"io_timeout"`
}

type PrintConfig struct {
	DefaultMedia    string `yaml:"default_media"`
	SendLabelLength bool   `yaml:"send_label_length"`
	ProofDir        string `yaml:"proof_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenPort:    8080,
		DataDir:       "./data",
		LogLevel:      "info",
		AdvertiseName: "AirLabel",
		Discovery: DiscoveryConfig{
			ServiceType:    dymo.ServiceType,
			Domain:         "local.",
			VendorToken:    dymo.VendorToken,
			Timeout:        4 * time.Second,
			HotStartWindow: 5 * time.Minute,
		},
		Printer: PrinterConfig{
			PollInterval:     5 * time.Second,
			PollInitialDelay: 100 * time.Millisecond,
			DialTimeout:      5 * time.Second,
			IOTimeout:        10 * time.Second,
		},
		Print: PrintConfig{
			DefaultMedia: dymo.DefaultLabel,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file or an
// empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from AIRLABEL_* environment variables. getenv is
// usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("AIRLABEL_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ListenPort = n
		}
	}
	if v := getenv("AIRLABEL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := getenv("AIRLABEL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("AIRLABEL_DISCOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Discovery.Timeout = d
		}
	}
	if v := getenv("AIRLABEL_PRINTER"); v != "" {
		c.Printer.Static = v
	}
	if v := getenv("AIRLABEL_ADVERTISE_NAME"); v != "" {
		c.AdvertiseName = v
	}
	if v := getenv("AIRLABEL_PROOF_DIR"); v != "" {
		c.Print.ProofDir = v
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port must be between 1 and 65535, got %d", c.ListenPort)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.Discovery.ServiceType == "" {
		return fmt.Errorf("discovery service type is required")
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery timeout must be positive")
	}
	if c.Discovery.HotStartWindow < 0 {
		return fmt.Errorf("hot start window must be non-negative")
	}
	if c.Printer.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Printer.DialTimeout < 0 || c.Printer.IOTimeout < 0 {
		return fmt.Errorf("printer timeouts must be non-negative")
	}
	if c.Printer.Static != "" {
		if _, _, err := c.StaticPrinter(); err != nil {
			return err
		}
	}
	if _, ok := dymo.LookupLabel(c.Print.DefaultMedia); !ok {
		return fmt.Errorf("unknown default media %q", c.Print.DefaultMedia)
	}
	return nil
}

// StaticPrinter splits Printer.Static into host and port. The port defaults
// to the raw print port.
func (c *Config) StaticPrinter() (string, int, error) {
	host, portStr, err := net.SplitHostPort(c.Printer.Static)
	if err != nil {
		return c.Printer.Static, dymo.DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid static printer port %q", portStr)
	}
	return host, port, nil
}
