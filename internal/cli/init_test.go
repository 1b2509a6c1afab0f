package cli

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/log"
)

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	cfg, err := LoadAndValidateConfig("")
	if err != nil {
		t.Fatalf("LoadAndValidateConfig: %v", err)
	}
	if cfg.DataBackend != "memory" {
		t.Errorf("DataBackend = %q", cfg.DataBackend)
	}

	t.Setenv("DATA_BACKEND", "oracle")
	if _, err := LoadAndValidateConfig(""); err == nil {
		t.Error("expected validation error")
	}
}

func TestGracefulShutdownOnParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cleaned := make(chan struct{})
	ctx, done := GracefulShutdown(parent, log.Discard(), time.Second, func(context.Context) {
		close(cleaned)
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not finish")
	}
	if ctx.Err() == nil {
		t.Error("context should be cancelled")
	}
	select {
	case <-cleaned:
	default:
		t.Error("cleanup did not run")
	}
}

func TestSetupLogger(t *testing.T) {
	l := SetupLogger("debug", "json")
	if l == nil || l.Component() != log.ComponentApp {
		t.Fatalf("unexpected logger %v", l)
	}
}
