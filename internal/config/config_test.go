package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", path, err)
		}
		if cfg.Discovery.Timeout != 4*time.Second {
			t.Errorf("Timeout = %v, want 4s", cfg.Discovery.Timeout)
		}
		if cfg.Discovery.HotStartWindow != 5*time.Minute {
			t.Errorf("HotStartWindow = %v", cfg.Discovery.HotStartWindow)
		}
		if cfg.Discovery.ServiceType != "_pdl-datastream._tcp" || cfg.Discovery.Domain != "local." {
			t.Errorf("service = %q in %q", cfg.Discovery.ServiceType, cfg.Discovery.Domain)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("defaults invalid: %v", err)
		}
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airlabel.yaml")
	data := `
listen_port: 9090
discovery:
  timeout: 10s
  vendor_token: dymo
printer:
  static: 192.168.1.50:9100
  poll_interval: 2s
print:
  default_media: Address30252
  send_label_length: true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenPort != 9090 {
		t.Errorf("ListenPort = %d", cfg.ListenPort)
	}
	if cfg.Discovery.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.Discovery.Timeout)
	}
	if cfg.Discovery.HotStartWindow != 5*time.Minute {
		t.Errorf("unset field lost its default: %v", cfg.Discovery.HotStartWindow)
	}
	if cfg.Printer.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v", cfg.Printer.PollInterval)
	}
	if !cfg.Print.SendLabelLength || cfg.Print.DefaultMedia != "Address30252" {
		t.Errorf("Print = %+v", cfg.Print)
	}
	host, port, err := cfg.StaticPrinter()
	if err != nil || host != "192.168.1.50" || port != 9100 {
		t.Errorf("StaticPrinter = %q, %d, %v", host, port, err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("listen_port: [1, 2"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"AIRLABEL_LISTEN_PORT":       "8181",
		"AIRLABEL_DATA_DIR":          "/var/lib/airlabel",
		"AIRLABEL_DISCOVERY_TIMEOUT": "6s",
		"AIRLABEL_PRINTER":           "printer.lan",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.ListenPort != 8181 || cfg.DataDir != "/var/lib/airlabel" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Discovery.Timeout != 6*time.Second {
		t.Errorf("Timeout = %v", cfg.Discovery.Timeout)
	}
	host, port, err := cfg.StaticPrinter()
	if err != nil || host != "printer.lan" || port != 9100 {
		t.Errorf("StaticPrinter = %q, %d, %v", host, port, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.ListenPort = 0 }},
		{"data dir", func(c *Config) { c.DataDir = "" }},
		{"timeout", func(c *Config) { c.Discovery.Timeout = 0 }},
		{"poll interval", func(c *Config) { c.Printer.PollInterval = -time.Second }},
		{"static port", func(c *Config) { c.Printer.Static = "host:http" }},
		{"media", func(c *Config) { c.Print.DefaultMedia = "Nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}

func TestStore_LastPrinter(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := s.LoadLastPrinter(); ok {
		t.Error("fresh store has a last printer")
	}
	saved := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return saved }
	if err := s.SaveLastPrinter("DYMO LabelWriter", "10.0.0.9", 9100); err != nil {
		t.Fatalf("SaveLastPrinter: %v", err)
	}
	if err := s.SetMedia("Address30252"); err != nil {
		t.Fatalf("SetMedia: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	lp, ok := reopened.LoadLastPrinter()
	if !ok {
		t.Fatal("last printer not persisted")
	}
	if lp.Name != "DYMO LabelWriter" || lp.Host != "10.0.0.9" || lp.Port != 9100 || !lp.SavedAt.Equal(saved) {
		t.Errorf("LastPrinter = %+v", lp)
	}
	if reopened.Media() != "Address30252" {
		t.Errorf("Media = %q", reopened.Media())
	}
	if _, err := os.Stat(filepath.Join(dir, "settings.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestStore_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{"), 0644)
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := s.LoadLastPrinter(); ok {
		t.Error("invalid file produced a printer")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveLastPrinter("DYMO", "h", 1); err != nil {
		t.Fatalf("SaveLastPrinter: %v", err)
	}
	if lp, ok := s.LoadLastPrinter(); !ok || lp.Host != "h" {
		t.Errorf("LastPrinter = %+v, %v", lp, ok)
	}
}
