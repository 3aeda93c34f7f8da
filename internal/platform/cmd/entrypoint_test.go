package cmd

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Address string `toml:"address" env:"CMD_TEST_ADDRESS"`
	Mode    string `toml:"mode" env:"CMD_TEST_MODE"`
}

func TestParseConfigLayersFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.toml")
	if err := os.WriteFile(path, []byte("address = \"file:9000\"\nmode = \"file-mode\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CMD_TEST_MODE", "env-mode")

	cfg := testConfig{Address: "default:8080", Mode: "default"}
	if err := ParseConfig(&cfg, path); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Address != "file:9000" {
		t.Fatalf("expected file address, got %q", cfg.Address)
	}
	if cfg.Mode != "env-mode" {
		t.Fatalf("expected env mode, got %q", cfg.Mode)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(&cfg.Address, "address", cfg.Address, "address")
	if err := ParseArgs(fs, []string{"-address", "flag:9001"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.Address != "flag:9001" {
		t.Fatalf("expected flag address, got %q", cfg.Address)
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	if err := ParseConfig[testConfig](nil, ""); err == nil {
		t.Fatal("expected nil target error")
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRunsLoop(t *testing.T) {
	t.Setenv("STOCKFOLIO_OTEL_ENDPOINT", "")
	want := errors.New("run failed")
	called := false
	err := RunWithTelemetry(context.Background(), ServicePortfolio, func(context.Context) error {
		called = true
		return want
	})
	if !called {
		t.Fatal("expected run function to be called")
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected run error, got %v", err)
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServicePortfolio, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}
