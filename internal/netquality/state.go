// Package netquality runs network speed tests and tracks their progress as a
// snapshot the terminal can display.
package netquality

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayaxan7/betTermux/internal/metrics"
)

// Progress milestones of a full test.
const (
	ProgressPing         = 20
	ProgressPingFinished = 40
	ProgressUploadBase   = 140
	ProgressMax          = 240

	maxLogMessages = 50
)

var (
	ErrAlreadyRunning = errors.New("a network test is already running")
	ErrNoRunner       = errors.New("no speed test runner configured")
)

// TestState is a snapshot of the current or last network test.
type TestState struct {
	IsRunning        bool
	CurrentPhase     string
	DownloadSpeed    float64 // Mbps
	UploadSpeed      float64 // Mbps
	Ping             int     // ms
	Jitter           int     // ms
	Progress         int
	ProgressMax      int
	Error            string
	IsCompleted      bool
	ServerDomain     string
	ConnectionType   string
	PacketLoss       *float64 // percent, nil when not measured
	CurrentTestValue string
	TrafficTestValue string
	LogMessages      []string // newest first
}

// NewTestState returns the idle state.
func NewTestState() TestState {
	return TestState{ProgressMax: ProgressMax}
}

// Result is the outcome of a completed test.
type Result struct {
	RunID          string
	DownloadSpeed  float64
	UploadSpeed    float64
	Ping           int
	Jitter         int
	ServerDomain   string
	ConnectionType string
	PacketLoss     *float64
}

func (r *Result) String() string {
	loss := "n/a"
	if r.PacketLoss != nil {
		loss = fmt.Sprintf("%.1f%%", *r.PacketLoss)
	}
	return fmt.Sprintf("download=%.2f Mb/s upload=%.2f Mb/s ping=%d ms jitter=%d ms loss=%s run=%s",
		r.DownloadSpeed, r.UploadSpeed, r.Ping, r.Jitter, loss, r.RunID)
}

// Listener receives the callback stream of a running test.
type Listener interface {
	OnTestStarted()
	OnFetchServerFailed(code int)
	OnFindingBestServerStarted()
	OnPingStarted()
	OnPingFinished(ping, jitter int)
	OnDownloadTestStarted()
	OnDownloadTestProgress(progress int, instantSpeed, avgSpeed float64)
	OnDownloadTestFinished(speed float64)
	OnUploadTestStarted()
	OnUploadTestProgress(progress int, instantSpeed, avgSpeed float64)
	OnUploadTestFinished(speed float64)
	OnTestWarning(warning string)
	OnTestFatalError(err string)
	OnTestInterrupted(reason string)
	OnTestFinished(result *Result)
}

// TestRunner drives a Listener through one test.
type TestRunner interface {
	Run(ctx context.Context, l Listener) error
}

// Manager folds listener callbacks into a TestState.
type Manager struct {
	runner TestRunner
	log    *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	state  TestState
	active bool
}

// NewManager creates a manager that runs tests with runner.
func NewManager(runner TestRunner, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		runner: runner,
		log:    logger.Named("netquality"),
		now:    time.Now,
		state:  NewTestState(),
	}
}

// State returns a copy of the current state.
func (m *Manager) State() TestState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.LogMessages = append([]string(nil), m.state.LogMessages...)
	return s
}

// Begin resets the state for a new test. It is a no-op while a test runs.
func (m *Manager) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return
	}
	m.state = TestState{
		IsRunning:    true,
		CurrentPhase: "Initializing...",
		ProgressMax:  ProgressMax,
		LogMessages:  []string{m.stamp("Test initialization started")},
	}
}

// Run executes one test with the configured runner, blocking until it ends.
func (m *Manager) Run(ctx context.Context) error {
	if m.runner == nil {
		m.OnTestFatalError(ErrNoRunner.Error())
		return ErrNoRunner
	}
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.active = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
	}()

	return m.runner.Run(ctx, m)
}

func (m *Manager) stamp(msg string) string {
	return fmt.Sprintf("[%s]: %s", m.now().Format("15:04:05.000"), msg)
}

// update applies fn and prepends msg to the log.
func (m *Manager) update(msg string, fn func(s *TestState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	entry := m.stamp(msg)
	logs := make([]string, 0, maxLogMessages)
	logs = append(logs, entry)
	logs = append(logs, m.state.LogMessages...)
	if len(logs) > maxLogMessages {
		logs = logs[:maxLogMessages]
	}
	m.state.LogMessages = logs
	m.log.Debug(entry)
}

func (m *Manager) OnTestStarted() {
	m.update("Test started", func(s *TestState) {
		s.IsRunning = true
		s.CurrentPhase = "Test started"
		s.IsCompleted = false
		s.Error = ""
		s.Progress = 0
		s.CurrentTestValue = ""
		s.TrafficTestValue = ""
	})
}

func (m *Manager) OnFetchServerFailed(code int) {
	m.update(fmt.Sprintf("Server fetch error: %d", code), func(s *TestState) {
		s.IsRunning = false
		s.Error = fmt.Sprintf("Failed to fetch server (Error: %d)", code)
		s.IsCompleted = true
		s.CurrentPhase = "Server fetch error"
	})
	metrics.RecordNetworkTest("server_error", 0, 0)
}

func (m *Manager) OnFindingBestServerStarted() {
	m.update("Finding best server...", func(s *TestState) {
		s.CurrentPhase = "Finding best server..."
	})
}

func (m *Manager) OnPingStarted() {
	m.update("Ping Started", func(s *TestState) {
		s.CurrentPhase = "Testing ping..."
		s.Progress = ProgressPing
		s.CurrentTestValue = "Progress"
	})
}

func (m *Manager) OnPingFinished(ping, jitter int) {
	m.update(fmt.Sprintf("Ping Finished: %d ms| jitter: %d", ping, jitter), func(s *TestState) {
		s.Ping = ping
		s.Jitter = jitter
		s.CurrentPhase = "Ping test completed"
		s.Progress = ProgressPingFinished
		s.CurrentTestValue = fmt.Sprintf("%d ms | jitter: %d", ping, jitter)
	})
}

func (m *Manager) OnDownloadTestStarted() {
	m.update("Download Test Started", func(s *TestState) {
		s.CurrentPhase = "Testing download speed..."
		s.CurrentTestValue = ""
		s.TrafficTestValue = ""
	})
}

func (m *Manager) OnDownloadTestProgress(progress int, instantSpeed, avgSpeed float64) {
	msg := fmt.Sprintf("Download Test Progress: %d%% -> %.2f Mb/s\nTransferredMb: %.2f", progress, avgSpeed, instantSpeed)
	m.update(msg, func(s *TestState) {
		s.Progress = ProgressPingFinished + progress
		s.DownloadSpeed = avgSpeed
		s.CurrentPhase = "Download"
		s.CurrentTestValue = fmt.Sprintf("%.2f Mb/s", avgSpeed)
		s.TrafficTestValue = fmt.Sprintf("TransferredMb: %.2f", instantSpeed)
	})
}

func (m *Manager) OnDownloadTestFinished(speed float64) {
	m.update(fmt.Sprintf("Download Test Finished: %.2f Mb/s", speed), func(s *TestState) {
		s.DownloadSpeed = speed
		s.CurrentPhase = "Download completed"
		s.CurrentTestValue = fmt.Sprintf("%.2f Mb/s", speed)
	})
}

func (m *Manager) OnUploadTestStarted() {
	m.update("Upload Test Started", func(s *TestState) {
		s.CurrentPhase = "Testing upload speed..."
		s.CurrentTestValue = ""
		s.TrafficTestValue = ""
	})
}

func (m *Manager) OnUploadTestProgress(progress int, instantSpeed, avgSpeed float64) {
	msg := fmt.Sprintf("Upload Test Progress: %d%% -> %.2f Mb/s\nTransferredMb: %.2f", progress, avgSpeed, instantSpeed)
	m.update(msg, func(s *TestState) {
		s.Progress = ProgressUploadBase + progress
		s.UploadSpeed = avgSpeed
		s.CurrentPhase = "Upload"
		s.CurrentTestValue = fmt.Sprintf("%.2f Mb/s", avgSpeed)
		s.TrafficTestValue = fmt.Sprintf("TransferredMb: %.2f", instantSpeed)
	})
}

func (m *Manager) OnUploadTestFinished(speed float64) {
	m.update(fmt.Sprintf("Upload Test Finished: %.2f Mb/s", speed), func(s *TestState) {
		s.UploadSpeed = speed
		s.CurrentPhase = "Upload completed"
		s.CurrentTestValue = fmt.Sprintf("%.2f Mb/s", speed)
	})
}

func (m *Manager) OnTestWarning(warning string) {
	if warning == "" {
		warning = "Unknown warning"
	}
	m.update("Test Warning: "+warning, func(s *TestState) {
		s.CurrentPhase = "Warning"
		s.CurrentTestValue = "Test Warning"
		s.TrafficTestValue = warning
	})
}

func (m *Manager) OnTestFatalError(err string) {
	m.update("Test Fatal Error: "+err, func(s *TestState) {
		if err == "" {
			s.Error = "Unknown fatal error"
			s.TrafficTestValue = "Unknown error"
		} else {
			s.Error = err
			s.TrafficTestValue = err
		}
		s.IsRunning = false
		s.IsCompleted = true
		s.CurrentPhase = "Fatal Error"
		s.CurrentTestValue = "Test Error"
	})
	metrics.RecordNetworkTest("fatal_error", 0, 0)
}

func (m *Manager) OnTestInterrupted(reason string) {
	if reason == "" {
		reason = "Unknown reason"
	}
	m.update("Test Interrupted: "+reason, func(s *TestState) {
		s.IsRunning = false
		s.Error = "Test interrupted: " + reason
		s.IsCompleted = true
		s.CurrentPhase = "Test interrupted"
		s.CurrentTestValue = reason
	})
	metrics.RecordNetworkTest("interrupted", 0, 0)
}

func (m *Manager) OnTestFinished(result *Result) {
	if result == nil {
		m.update("Test completed but no results received", func(s *TestState) {
			s.IsRunning = false
			s.Error = "Test completed but no results received"
			s.IsCompleted = true
		})
		metrics.RecordNetworkTest("empty", 0, 0)
		return
	}

	domain := orUnknown(result.ServerDomain)
	m.update(fmt.Sprintf("Test Finished: Server[%s] -> %s", domain, result), func(s *TestState) {
		s.IsRunning = false
		s.CurrentPhase = "Test completed"
		s.DownloadSpeed = result.DownloadSpeed
		s.UploadSpeed = result.UploadSpeed
		s.Ping = result.Ping
		s.Jitter = result.Jitter
		s.ServerDomain = domain
		s.ConnectionType = orUnknown(result.ConnectionType)
		s.PacketLoss = result.PacketLoss
		s.IsCompleted = true
		s.Progress = ProgressMax
		s.CurrentTestValue = "Test completed"
	})
	metrics.RecordNetworkTest("success", result.DownloadSpeed, result.UploadSpeed)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
