package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologFields(t *testing.T) {
	var buf bytes.Buffer
	l := Zerolog{L: zerolog.New(&buf)}

	l.Info(context.Background(), "task started", Fields{"task_id": "t-1"}, Fields{"steps": 3})

	out := buf.String()
	for _, want := range []string{`"level":"info"`, `"task_id":"t-1"`, `"steps":3`, `"message":"task started"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
}

func TestNewConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Zerolog{L: NewConsole(&buf, "warn", true)}

	l.Info(context.Background(), "hidden")
	l.Warn(context.Background(), "shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn line missing: %q", buf.String())
	}
}

func TestNewConsoleUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Zerolog{L: NewConsole(&buf, "chatty", true)}

	l.Debug(context.Background(), "debug line")
	l.Info(context.Background(), "info line")

	if strings.Contains(buf.String(), "debug line") {
		t.Error("unknown level should fall back to info")
	}
	if !strings.Contains(buf.String(), "info line") {
		t.Errorf("info line missing: %q", buf.String())
	}
}
