package terminal

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayaxan7/betTermux/internal/events"
	"github.com/ayaxan7/betTermux/internal/logging"
)

// Suggester produces completions for the text being typed.
type Suggester interface {
	Fetch(input string, history []string)
	Suggestions() []string
}

// SessionConfig configures a Session.
type SessionConfig struct {
	RootID       string
	HistoryLimit int
	Suggester    Suggester
	Options
}

// Session is the controller of one terminal session. Commands are
// serialized; background follow-ups append to the same transcript.
type Session struct {
	ID string

	state     *State
	interp    *Interpreter
	events    *events.Broadcaster
	suggester Suggester
	log       *zap.Logger

	cmdMu sync.Mutex

	mu        sync.Mutex
	input     string
	nav       *HistoryNavigator
	aiHistory *Ring
}

// NewSession creates a session at cfg.RootID with display path "~".
func NewSession(cfg SessionConfig) *Session {
	if cfg.RootID == "" {
		cfg.RootID = "root"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	id := uuid.NewString()
	cfg.Logger = logging.ForSession(cfg.Logger, id)

	b := events.NewBroadcaster()
	state := NewState(cfg.RootID, b)
	return &Session{
		ID:        id,
		state:     state,
		interp:    NewInterpreter(state, cfg.Options),
		events:    b,
		suggester: cfg.Suggester,
		log:       cfg.Logger,
		nav:       NewHistoryNavigator(),
		aiHistory: NewRing(cfg.HistoryLimit),
	}
}

// Submit runs one command line. It appends the Prompt and the result entry
// and returns the result. Blank lines are ignored and return nil.
func (s *Session) Submit(ctx context.Context, line string) Entry {
	command := strings.TrimSpace(line)
	if command == "" {
		return nil
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.state.Append(Prompt{Command: command, Cwd: s.state.Path().DisplayPath})

	s.mu.Lock()
	s.aiHistory.Add(command)
	s.input = ""
	s.nav.Reset()
	s.mu.Unlock()

	s.state.addBusy(1)
	defer s.state.addBusy(-1)

	s.log.Debug("executing command", logging.Command(command))
	result, start := s.interp.dispatch(ctx, Tokenize(command))
	s.state.Append(result)
	start()
	return result
}

// SetInput replaces the input line without fetching suggestions.
func (s *Session) SetInput(input string) {
	s.mu.Lock()
	s.input = input
	s.mu.Unlock()
}

// InputChanged records the input line and requests suggestions for it.
// Any earlier pending request is superseded.
func (s *Session) InputChanged(input string) {
	s.mu.Lock()
	s.input = input
	history := s.aiHistory.Items()
	s.mu.Unlock()

	if s.suggester != nil {
		s.suggester.Fetch(input, history)
	}
}

// Input returns the current input line.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// HistoryUp recalls an older command into the input line.
func (s *Session) HistoryUp() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.nav.Up(s.state.Prompts())
	if ok {
		s.input = cmd
	}
	return s.input, ok
}

// HistoryDown recalls a newer command into the input line.
func (s *Session) HistoryDown() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.nav.Down(s.state.Prompts())
	if ok {
		s.input = cmd
	}
	return s.input, ok
}

// Suggestions returns the current AI suggestions.
func (s *Session) Suggestions() []string {
	if s.suggester == nil {
		return nil
	}
	return s.suggester.Suggestions()
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []Entry { return s.state.Transcript() }

// Path returns the working directory.
func (s *Session) Path() PathState { return s.state.Path() }

// Busy reports whether a command or a blocking follow-up is in progress.
func (s *Session) Busy() bool { return s.state.Busy() }

// LoggedOut reports whether logout was run.
func (s *Session) LoggedOut() bool { return s.state.LoggedOut() }

// AccountDeleted reports whether the account was deleted.
func (s *Session) AccountDeleted() bool { return s.state.AccountDeleted() }

// Ended reports whether the session should be torn down.
func (s *Session) Ended() bool {
	return s.state.LoggedOut() || s.state.AccountDeleted()
}

// Commands returns the known command names.
func (s *Session) Commands() []string { return s.interp.Commands() }

// Subscribe returns a channel carrying every transcript event in order. The
// caller must drain it until it is closed by Unsubscribe or Close.
func (s *Session) Subscribe() chan events.Event { return s.events.SubscribeAll() }

// Unsubscribe releases a channel returned by Subscribe.
func (s *Session) Unsubscribe(ch chan events.Event) { s.events.Unsubscribe(ch) }

// Wait blocks until background follow-ups have finished.
func (s *Session) Wait() { s.interp.Wait() }

// Close cancels background work and closes all subscriptions.
func (s *Session) Close() {
	s.interp.Close()
	s.events.Close()
}
