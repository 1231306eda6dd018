package netquality

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
)

func fixedManager(runner TestRunner) *Manager {
	m := NewManager(runner, nil)
	m.now = func() time.Time { return time.Date(2024, 5, 1, 13, 4, 5, 67_000_000, time.UTC) }
	return m
}

func TestManagerBeginResetsState(t *testing.T) {
	m := fixedManager(nil)
	m.OnPingFinished(12, 3)
	m.Begin()

	s := m.State()
	if !s.IsRunning || s.CurrentPhase != "Initializing..." || s.Ping != 0 {
		t.Errorf("unexpected state after Begin: %+v", s)
	}
	if len(s.LogMessages) != 1 || s.LogMessages[0] != "[13:04:05.067]: Test initialization started" {
		t.Errorf("unexpected logs %q", s.LogMessages)
	}
}

func TestManagerProgressArithmetic(t *testing.T) {
	m := fixedManager(nil)
	steps := []struct {
		name string
		fn   func()
		want int
	}{
		{"ping started", m.OnPingStarted, ProgressPing},
		{"ping finished", func() { m.OnPingFinished(20, 2) }, ProgressPingFinished},
		{"download 50", func() { m.OnDownloadTestProgress(50, 80, 75) }, 90},
		{"upload 25", func() { m.OnUploadTestProgress(25, 10, 9.5) }, 165},
		{"finished", func() { m.OnTestFinished(&Result{DownloadSpeed: 75, UploadSpeed: 9.5}) }, ProgressMax},
	}
	for _, step := range steps {
		step.fn()
		if got := m.State().Progress; got != step.want {
			t.Errorf("%s: progress = %d, want %d", step.name, got, step.want)
		}
	}

	s := m.State()
	if !s.IsCompleted || s.IsRunning || s.Error != "" {
		t.Errorf("expected completed state: %+v", s)
	}
	if s.ServerDomain != "Unknown" || s.ConnectionType != "Unknown" {
		t.Errorf("missing server info should read Unknown: %+v", s)
	}
	if s.Status() != "COMPLETED" || s.Percent() != 100 {
		t.Errorf("status %s percent %d", s.Status(), s.Percent())
	}
}

func TestManagerLogsNewestFirstAndCapped(t *testing.T) {
	m := fixedManager(nil)
	for i := 0; i < 60; i++ {
		m.OnTestWarning("w" + strconv.Itoa(i))
	}
	logs := m.State().LogMessages
	if len(logs) != maxLogMessages {
		t.Fatalf("expected %d logs, got %d", maxLogMessages, len(logs))
	}
	if !strings.HasSuffix(logs[0], "Test Warning: w59") {
		t.Errorf("newest log should be first, got %q", logs[0])
	}
	stamp := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\.\d{3}\]: `)
	for _, l := range logs {
		if !stamp.MatchString(l) {
			t.Fatalf("log %q lacks timestamp prefix", l)
		}
	}
}

func TestManagerFailureCallbacks(t *testing.T) {
	tests := []struct {
		name      string
		fn        func(m *Manager)
		wantError string
		wantPhase string
	}{
		{"server", func(m *Manager) { m.OnFetchServerFailed(503) }, "Failed to fetch server (Error: 503)", "Server fetch error"},
		{"fatal", func(m *Manager) { m.OnTestFatalError("") }, "Unknown fatal error", "Fatal Error"},
		{"interrupted", func(m *Manager) { m.OnTestInterrupted("user") }, "Test interrupted: user", "Test interrupted"},
		{"no result", func(m *Manager) { m.OnTestFinished(nil) }, "Test completed but no results received", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fixedManager(nil)
			tt.fn(m)
			s := m.State()
			if s.Error != tt.wantError {
				t.Errorf("error = %q, want %q", s.Error, tt.wantError)
			}
			if s.CurrentPhase != tt.wantPhase {
				t.Errorf("phase = %q, want %q", s.CurrentPhase, tt.wantPhase)
			}
			if s.IsRunning || !s.IsCompleted || s.Status() != "FAILED" {
				t.Errorf("unexpected flags: %+v", s)
			}
		})
	}
}

func TestStateSnapshotIsolated(t *testing.T) {
	m := fixedManager(nil)
	m.Begin()
	s := m.State()
	s.LogMessages[0] = "mutated"
	if m.State().LogMessages[0] == "mutated" {
		t.Error("State must return a copy of the logs")
	}
}

type blockingRunner struct{ release chan struct{} }

func (b blockingRunner) Run(ctx context.Context, l Listener) error {
	l.OnTestStarted()
	<-b.release
	return nil
}

func TestManagerRejectsConcurrentRuns(t *testing.T) {
	r := blockingRunner{release: make(chan struct{})}
	m := fixedManager(r)
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for m.State().CurrentPhase != "Test started" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := m.Run(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	m.Begin()
	if m.State().CurrentPhase != "Test started" {
		t.Error("Begin must not reset a running test")
	}
	close(r.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if err := fixedManager(nil).Run(context.Background()); err != ErrNoRunner {
		t.Errorf("expected ErrNoRunner, got %v", err)
	}
}

func speedServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/__down":
			n, _ := strconv.Atoi(r.URL.Query().Get("bytes"))
			w.Header().Set("Content-Length", strconv.Itoa(n))
			w.Write(make([]byte, n))
		case "/__up":
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestRunnerFullTest(t *testing.T) {
	ts := speedServer(t)
	defer ts.Close()

	r, err := NewRunner(RunnerConfig{BaseURL: ts.URL, PingCount: 3, DownloadBytes: 256 << 10, UploadBytes: 128 << 10})
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(r, nil)
	m.Begin()
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := m.State()
	if s.Status() != "COMPLETED" {
		t.Fatalf("expected completed, got %s (%s)", s.Status(), s.Error)
	}
	if s.Progress != ProgressMax {
		t.Errorf("progress = %d", s.Progress)
	}
	if s.DownloadSpeed <= 0 || s.UploadSpeed <= 0 {
		t.Errorf("expected positive speeds: %+v", s)
	}
	if s.PacketLoss == nil || *s.PacketLoss != 0 {
		t.Errorf("expected zero packet loss, got %v", s.PacketLoss)
	}
	if !strings.HasPrefix(ts.URL, "http://"+s.ServerDomain) {
		t.Errorf("server domain %q", s.ServerDomain)
	}
}

func TestRunnerServerFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	r, err := NewRunner(RunnerConfig{BaseURL: ts.URL})
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(r, nil)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := m.State().Error; got != "Failed to fetch server (Error: 503)" {
		t.Errorf("error = %q", got)
	}
}

func TestNewRunnerRejectsBadURL(t *testing.T) {
	if _, err := NewRunner(RunnerConfig{BaseURL: "not a url"}); err == nil {
		t.Error("expected error")
	}
}

func TestRatings(t *testing.T) {
	if SpeedRating(120) != "★ Excellent" || SpeedRating(30) != "● Good" || SpeedRating(1) != "✗ Very Slow" {
		t.Error("speed rating thresholds")
	}
	if PingRating(20) != "★ Excellent" || PingRating(150) != "▽ Poor" {
		t.Error("ping rating thresholds")
	}
	if JitterRating(10) != "● Good" || JitterRating(60) != "✗ Very Poor" {
		t.Error("jitter rating thresholds")
	}
	if PacketLossRating(0) != "★ Perfect" || PacketLossRating(2) != "○ Fair" {
		t.Error("packet loss rating thresholds")
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		current, max, width int
		want                string
	}{
		{0, 240, 4, "▐░░░░▌ 0%"},
		{120, 240, 4, "▐██░░▌ 50%"},
		{300, 240, 4, "▐████▌ 100%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.current, tt.max, tt.width); got != tt.want {
			t.Errorf("ProgressBar(%d, %d, %d) = %q, want %q", tt.current, tt.max, tt.width, got, tt.want)
		}
	}
}
