package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func clearRelayEnv(t *testing.T) {
	for _, k := range []string{"SHAREMESH_RELAY_CONFIG", "SHAREMESH_LISTEN", "SHAREMESH_ALLOWED_ORIGINS", "SHAREMESH_STRICT_ROOMS", "SHAREMESH_ROOM_TTL"} {
		t.Setenv(k, "")
	}
}

func parseFlags(t *testing.T, args ...string) *RelayFlags {
	t.Helper()
	var flags RelayFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return &flags
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadRelayDefaults(t *testing.T) {
	clearRelayEnv(t)

	cfg, err := LoadRelay(parseFlags(t))
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	want := DefaultRelay()
	if cfg.Listen != want.Listen || cfg.Rooms != want.Rooms || cfg.NameAttempts != want.NameAttempts || cfg.SendBuffer != want.SendBuffer {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadRelayLayering(t *testing.T) {
	clearRelayEnv(t)
	path := writeConfig(t, `
listen: ":9000"
allowed_origins: ["https://file.example"]
rooms:
  strict: true
  ttl: 5m
  min_id_length: 5
  max_id_length: 7
name_attempts: 20
send_buffer: 64
`)

	// The file alone.
	cfg, err := LoadRelay(parseFlags(t, "--config", path))
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	if cfg.Listen != ":9000" || !cfg.Rooms.Strict || cfg.Rooms.TTL != 5*time.Minute || cfg.Rooms.MinIDLength != 5 || cfg.Rooms.MaxIDLength != 7 || cfg.NameAttempts != 20 || cfg.SendBuffer != 64 {
		t.Errorf("file cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://file.example" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}

	// Environment beats the file.
	t.Setenv("SHAREMESH_LISTEN", ":9100")
	t.Setenv("SHAREMESH_STRICT_ROOMS", "false")
	t.Setenv("SHAREMESH_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	cfg, err = LoadRelay(parseFlags(t, "-c", path))
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	if cfg.Listen != ":9100" || cfg.Rooms.Strict || len(cfg.AllowedOrigins) != 2 {
		t.Errorf("env cfg = %+v", cfg)
	}
	if cfg.SendBuffer != 64 {
		t.Errorf("unset env overrode the file: send_buffer = %d", cfg.SendBuffer)
	}

	// Explicit flags beat everything; defaulted flags do not.
	cfg, err = LoadRelay(parseFlags(t, "-c", path, "--listen", ":9200", "--room-ttl", "30s"))
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	if cfg.Listen != ":9200" || cfg.Rooms.TTL != 30*time.Second {
		t.Errorf("flag cfg = %+v", cfg)
	}
	if cfg.NameAttempts != 20 {
		t.Errorf("defaulted flag overrode the file: name_attempts = %d", cfg.NameAttempts)
	}
}

func TestLoadRelayConfigFromEnv(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("SHAREMESH_RELAY_CONFIG", writeConfig(t, "listen: \":7000\"\n"))

	cfg, err := LoadRelay(nil)
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
}

func TestLoadRelayErrors(t *testing.T) {
	clearRelayEnv(t)

	if _, err := LoadRelay(parseFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))); err == nil {
		t.Error("missing config file accepted")
	}
	if _, err := LoadRelay(parseFlags(t, "--config", writeConfig(t, "rooms: [not, a, map]"))); err == nil {
		t.Error("malformed YAML accepted")
	}

	t.Setenv("SHAREMESH_ROOM_TTL", "forever")
	if _, err := LoadRelay(nil); err == nil {
		t.Error("bad SHAREMESH_ROOM_TTL accepted")
	}
}

func TestRelayValidateJoinsErrors(t *testing.T) {
	cfg := DefaultRelay()
	cfg.Listen = ""
	cfg.Rooms.MinIDLength = 8
	cfg.Rooms.MaxIDLength = 4
	cfg.SendBuffer = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"listen", "max_id_length", "send_buffer"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if err := DefaultRelay().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}
