package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	delay   time.Duration
	reply   func(prompt string) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply(prompt)
}

func (f *fakeCompleter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestClean(t *testing.T) {
	text := "```bash\nls -la\n\n  cd docs  \nThis explanation is useless\nmkdir a\ntouch b\nrm c\ncat d\n```"
	got := Clean(text)
	want := []string{"ls -la", "cd docs", "mkdir a", "touch b", "rm c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Clean = %q, want %q", got, want)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("ca", []string{"ls", "cd docs"})
	if !strings.Contains(p, "Previous commands: ls, cd docs") {
		t.Errorf("history missing from prompt: %s", p)
	}
	if !strings.HasSuffix(p, "Context: ca") {
		t.Errorf("input missing from prompt: %s", p)
	}
	if strings.Contains(BuildPrompt("x", nil), "Previous commands") {
		t.Error("empty history should be omitted")
	}
}

func TestManagerDebouncesToLatestInput(t *testing.T) {
	fc := &fakeCompleter{reply: func(p string) (string, error) { return "cat notes.txt", nil }}
	changes := make(chan []string, 4)
	m := NewManager(fc, Config{Debounce: 20 * time.Millisecond, OnChange: func(s []string) { changes <- s }})
	defer m.Close()

	m.Fetch("c", nil)
	m.Fetch("ca", nil)
	m.Fetch("cat", []string{"ls"})

	select {
	case got := <-changes:
		if len(got) != 1 || got[0] != "cat notes.txt" {
			t.Errorf("unexpected suggestions %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no suggestions delivered")
	}

	calls := fc.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one completion request, got %d", len(calls))
	}
	if !strings.HasSuffix(calls[0], "Context: cat") {
		t.Errorf("request should carry the latest input: %s", calls[0])
	}
}

func TestManagerDiscardsSupersededResult(t *testing.T) {
	var n int32
	fc := &fakeCompleter{
		delay: 50 * time.Millisecond,
		reply: func(p string) (string, error) {
			atomic.AddInt32(&n, 1)
			if strings.HasSuffix(p, "Context: old") {
				return "stale", nil
			}
			return "fresh", nil
		},
	}
	m := NewManager(fc, Config{Debounce: time.Millisecond})
	defer m.Close()

	m.Fetch("old", nil)
	waitFor(t, func() bool { return len(fc.calls()) == 1 })
	m.Fetch("new", nil)

	waitFor(t, func() bool {
		s := m.Suggestions()
		return len(s) == 1 && s[0] == "fresh"
	})
	time.Sleep(80 * time.Millisecond)
	if s := m.Suggestions(); len(s) != 1 || s[0] != "fresh" {
		t.Errorf("stale result leaked: %q", s)
	}
}

func TestManagerBlankInputClears(t *testing.T) {
	fc := &fakeCompleter{reply: func(string) (string, error) { return "ls", nil }}
	m := NewManager(fc, Config{Debounce: time.Millisecond})
	defer m.Close()

	m.Fetch("l", nil)
	waitFor(t, func() bool { return len(m.Suggestions()) == 1 })

	m.Fetch("   ", nil)
	if len(m.Suggestions()) != 0 {
		t.Error("blank input should clear suggestions")
	}
}

func TestManagerErrorClears(t *testing.T) {
	fail := false
	var mu sync.Mutex
	fc := &fakeCompleter{reply: func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return "", errors.New("quota exceeded")
		}
		return "pwd", nil
	}}
	m := NewManager(fc, Config{Debounce: time.Millisecond})
	defer m.Close()

	m.Fetch("p", nil)
	waitFor(t, func() bool { return len(m.Suggestions()) == 1 })

	mu.Lock()
	fail = true
	mu.Unlock()
	m.Fetch("pw", nil)
	waitFor(t, func() bool { return len(fc.calls()) == 2 && len(m.Suggestions()) == 0 })
}

func TestManagerDisabledWithoutCompleter(t *testing.T) {
	m := NewManager(nil, Config{})
	m.Fetch("ls", nil)
	if len(m.Suggestions()) != 0 {
		t.Error("disabled manager must not suggest")
	}
	m.Close()
	m.Fetch("ls", nil)
}

func TestOpenAICompleter(t *testing.T) {
	var gotModel, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ls\ncd .."},"finish_reason":"stop"}]}`))
	}))
	defer ts.Close()

	c := NewOpenAICompleter("secret", ts.URL+"/v1", "gemini-2.0-flash")
	text, err := c.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "ls\ncd .." {
		t.Errorf("text = %q", text)
	}
	if gotModel != "gemini-2.0-flash" || gotAuth != "Bearer secret" {
		t.Errorf("unexpected request model=%q auth=%q", gotModel, gotAuth)
	}
}
