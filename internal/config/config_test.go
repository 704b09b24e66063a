package config

import (
	"strings"
	"testing"
)

func clearClientEnv(t *testing.T) {
	for _, k := range []string{"SHAREMESH_RELAY", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD", "SHAREMESH_OUTPUT_DIR", "SHAREMESH_FORCE_RELAY"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearClientEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RelayURL != DefaultRelayURL || cfg.STUNServer != DefaultSTUN || cfg.OutputDir != DefaultOutputDir {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.GetTURNServers() != nil {
		t.Errorf("TURN servers without TURN_SERVER: %v", cfg.GetTURNServers())
	}
}

func TestLoadPriority(t *testing.T) {
	clearClientEnv(t)
	t.Setenv("SHAREMESH_RELAY", "wss://env.example/ws")
	t.Setenv("STUN_SERVER", "stun:env.example:3478")
	t.Setenv("SHAREMESH_OUTPUT_DIR", "/tmp/env")

	cfg, err := Load(Options{RelayURL: "ws://flag.example/ws"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RelayURL != "ws://flag.example/ws" {
		t.Errorf("RelayURL = %q, want the flag value", cfg.RelayURL)
	}
	if cfg.STUNServer != "stun:env.example:3478" || cfg.OutputDir != "/tmp/env" {
		t.Errorf("env values not applied: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	clearClientEnv(t)

	if _, err := Load(Options{RelayURL: "http://relay.example"}); err == nil {
		t.Error("http relay url accepted")
	}
	if _, err := Load(Options{ForceRelay: true}); err == nil {
		t.Error("force relay without TURN accepted")
	}

	t.Setenv("SHAREMESH_FORCE_RELAY", "maybe")
	if _, err := Load(Options{}); err == nil || !strings.Contains(err.Error(), "SHAREMESH_FORCE_RELAY") {
		t.Errorf("bad SHAREMESH_FORCE_RELAY error = %v", err)
	}

	t.Setenv("SHAREMESH_FORCE_RELAY", "true")
	t.Setenv("TURN_SERVER", "turn.example")
	cfg, err := Load(Options{})
	if err != nil || !cfg.ForceRelay {
		t.Errorf("Load = %+v, %v", cfg, err)
	}
}

func TestTURNServerExpansion(t *testing.T) {
	cfg := &Config{TURNServer: "turn:relay.example", TURNUser: "u", TURNPass: "p"}
	got := cfg.GetTURNServers()
	want := []string{
		"turn:relay.example:3478?transport=udp",
		"turn:relay.example:3478?transport=tcp",
		"turns:relay.example:5349?transport=tcp",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("GetTURNServers = %v, want %v", got, want)
	}

	cfg.TURNServer = "turn:relay.example:3478?transport=udp"
	if got := cfg.GetTURNServers(); len(got) != 1 || got[0] != cfg.TURNServer {
		t.Errorf("explicit URL rewritten: %v", got)
	}

	if u, p := cfg.GetTURNCredentials(); u != "u" || p != "p" {
		t.Errorf("credentials = %q, %q", u, p)
	}
}
