package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":  zapcore.DebugLevel,
		" INFO ": zapcore.InfoLevel,
		"Warn":   zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestOutputPathNeverStdout(t *testing.T) {
	for _, in := range []string{"", "stdout", "stderr", "  "} {
		if got := OutputPath(in); got != "stderr" {
			t.Errorf("OutputPath(%q) = %q, want stderr", in, got)
		}
	}
	if got := OutputPath("/tmp/b.log"); got != "/tmp/b.log" {
		t.Errorf("OutputPath kept file = %q", got)
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bettermux.log")
	if err := Init(Config{Level: "info", Format: "json", OutputPath: path}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { globalLogger = nil })

	ForSession(nil, "s-1").Info("ran", Command("ls"))
	L().Debug("hidden")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{`"session_id":"s-1"`, `"command":"ls"`, `"logger":"bettermux"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
}
