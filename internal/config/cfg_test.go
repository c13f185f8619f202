package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bivium.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Reader.RowHeight != 50 || cfg.Reader.Stride != 5 {
		t.Errorf("reader = %+v", cfg.Reader)
	}
	if cfg.Reader.ProgressInterval != 3*time.Second {
		t.Errorf("interval = %v", cfg.Reader.ProgressInterval)
	}
	if cfg.Reader.HideDelay != 2500*time.Millisecond {
		t.Errorf("hide delay = %v", cfg.Reader.HideDelay)
	}
	if cfg.Terminal.RowHeight != 2 {
		t.Errorf("terminal row height = %d", cfg.Terminal.RowHeight)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
library: /srv/books
storage:
  backend: sqlite
reader:
  stride: 10
`)
	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if cfg.Library != "/srv/books" || cfg.Storage.Backend != "sqlite" || cfg.Reader.Stride != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	// untouched keys keep their defaults
	if cfg.Reader.RowHeight != 50 {
		t.Errorf("row height = %v", cfg.Reader.RowHeight)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "reader:\n  rowheight: 12\n")
	if _, err := LoadConfiguration(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"backend": "storage:\n  backend: redis\n",
		"stride":  "reader:\n  stride: 0\n",
		"listen":  "server:\n  listen: nowhere\n",
		"logging": "logging:\n  console:\n    level: loud\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfiguration(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvLibrary, "/tmp/books")
	t.Setenv(EnvStorage, "sqlite")
	t.Setenv(EnvListen, "localhost:9000")
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if cfg.Library != "/tmp/books" || cfg.Storage.Backend != "sqlite" || cfg.Server.Listen != "localhost:9000" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestDump(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	data, err := Dump(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "row_height: 50") {
		t.Errorf("dump missing reader settings:\n%s", data)
	}
	// a dump loads back unchanged
	again, err := LoadConfiguration(writeConfig(t, string(data)))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *again != *cfg {
		t.Errorf("reload = %+v, want %+v", again, cfg)
	}
}

func TestPrepareNoneLogger(t *testing.T) {
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "none"},
	}
	log, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	log.Info("discarded")
}

func TestPrepareFileLogger(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "bivium.log")
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "debug", Destination: dest, Mode: "overwrite"},
	}
	log, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	log.Debug("Chapter loaded")
	_ = log.Sync()
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Chapter loaded") {
		t.Errorf("log file = %q", data)
	}
}
