// Package suggest fetches AI command completions for the text being typed.
package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ayaxan7/betTermux/internal/metrics"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	MaxSuggestions  = 5

	sampleCommands = "ls, cd, mkdir, touch, rm, cat, echo, pwd"
)

// Completer turns a prompt into completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer. An empty baseURL uses OpenAI itself.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" && baseURL != "https://api.openai.com/v1" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// Complete performs a single-message chat completion.
func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   128,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// BuildPrompt renders the completion prompt for input and prior commands.
func BuildPrompt(input string, history []string) string {
	historyText := ""
	if len(history) > 0 {
		historyText = "Previous commands: " + strings.Join(history, ", ")
	}
	return "You are a terminal assistant. For the following input, suggest ONLY 3-5 exact shell commands " +
		"or arguments to complete it. DO NOT provide explanations or descriptions. Return ONLY command " +
		"strings separated by line breaks. Sample commands: " + sampleCommands + ". " + historyText +
		" Context: " + input
}

// Clean keeps up to MaxSuggestions usable lines from completion text.
func Clean(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") || strings.Contains(line, "explanation") {
			continue
		}
		out = append(out, line)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

// Config configures a Manager.
type Config struct {
	Debounce time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
	// OnChange is called with the new list whenever it changes.
	OnChange func([]string)
}

// Manager debounces input changes into completion requests. Each Fetch
// supersedes the previous one: its timer is stopped, its request cancelled,
// and any late result discarded.
type Manager struct {
	completer Completer
	delay     time.Duration
	timeout   time.Duration
	log       *zap.Logger
	onChange  func([]string)

	mu          sync.Mutex
	gen         uint64
	timer       *time.Timer
	cancel      context.CancelFunc
	suggestions []string
	closed      bool
}

// NewManager creates a manager. A nil completer disables suggestions.
func NewManager(completer Completer, cfg Config) *Manager {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		completer: completer,
		delay:     cfg.Debounce,
		timeout:   cfg.Timeout,
		log:       cfg.Logger.Named("suggest"),
		onChange:  cfg.OnChange,
	}
}

// Fetch schedules suggestions for input after the debounce window.
// Blank input clears the list immediately.
func (m *Manager) Fetch(input string, history []string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.stopLocked()

	if strings.TrimSpace(input) == "" || m.completer == nil {
		changed := len(m.suggestions) > 0
		m.suggestions = nil
		m.mu.Unlock()
		if changed {
			m.notify(nil)
		}
		return
	}

	history = append([]string(nil), history...)
	m.timer = time.AfterFunc(m.delay, func() {
		m.run(gen, input, history)
	})
	m.mu.Unlock()
}

func (m *Manager) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) run(gen uint64, input string, history []string) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	start := time.Now()
	text, err := m.completer.Complete(ctx, BuildPrompt(input, history))

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		metrics.RecordSuggestion("superseded", time.Since(start))
		m.log.Debug("discarding superseded suggestions", zap.String("input", input))
		return
	}
	m.cancel = nil
	if err != nil {
		m.suggestions = nil
	} else {
		m.suggestions = Clean(text)
	}
	list := append([]string(nil), m.suggestions...)
	m.mu.Unlock()

	if err != nil {
		metrics.RecordSuggestion("error", time.Since(start))
		m.log.Warn("suggestion request failed", zap.Error(err))
	} else {
		metrics.RecordSuggestion("success", time.Since(start))
	}
	m.notify(list)
}

func (m *Manager) notify(list []string) {
	if m.onChange != nil {
		m.onChange(list)
	}
}

// Suggestions returns the current list.
func (m *Manager) Suggestions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.suggestions...)
}

// Close stops pending work; later Fetch calls are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.gen++
	m.stopLocked()
}
