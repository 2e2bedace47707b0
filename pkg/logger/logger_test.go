package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerUnknownBackend(t *testing.T) {
	if err := Init(WithBackend("syslog")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoggerSlogOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "period applied", String("period", "round-1.pgn"), Int("players", 4))

	out := buf.String()
	if !strings.Contains(out, "period applied") {
		t.Errorf("missing message in %q", out)
	}
	if !strings.Contains(out, "period=round-1.pgn") {
		t.Errorf("missing field in %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Errorf("missing caller in %q", out)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer SetLevel(slog.LevelInfo)

	ctx := context.Background()
	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Info(ctx, "hidden")
	Get().Warn(ctx, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %q", out)
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoggerZapBackend(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithBackend("zap"), WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer func() { _ = Init() }()

	ctx := context.Background()
	Named("store").Error(ctx, "commit failed", Error(errors.New("boom")), Float64("rating", 1500))
	if err := Sync(); err != nil {
		t.Errorf("failed to sync logger: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"msg":"commit failed"`, `"logger":"store"`, `"error":"boom"`, `"rating":1500`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %q", want, out)
		}
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "discarded")
	if l.Named("x") == nil {
		t.Fatal("named nop logger is nil")
	}
}
