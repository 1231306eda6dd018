package terminal

import (
	"sync"

	"github.com/ayaxan7/betTermux/internal/events"
	"github.com/ayaxan7/betTermux/internal/metrics"
)

// State is the mutable state of one terminal session: working directory,
// transcript, busy counter and the logout flags. It is safe for use by the
// command flow and background follow-ups at the same time.
type State struct {
	mu             sync.Mutex
	path           PathState
	transcript     []Entry
	busy           int
	loggedOut      bool
	accountDeleted bool

	events *events.Broadcaster
}

// NewState creates session state rooted at rootID. b may be nil.
func NewState(rootID string, b *events.Broadcaster) *State {
	return &State{path: NewPathState(rootID), events: b}
}

// Path returns the current working directory.
func (s *State) Path() PathState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *State) setPath(p PathState) {
	s.mu.Lock()
	s.path = p
	s.mu.Unlock()
}

// Append adds e to the transcript and notifies subscribers.
func (s *State) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, e)
	index := len(s.transcript) - 1
	metrics.SetTranscriptEntries(len(s.transcript))
	if s.events != nil {
		s.events.Publish(appendEvent(index, e))
	}
}

// Clear empties the transcript in place.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = s.transcript[:0]
	metrics.SetTranscriptEntries(0)
	if s.events != nil {
		s.events.Publish(events.Event{Type: events.EventClear})
	}
}

// Transcript returns a copy of the transcript.
func (s *State) Transcript() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.transcript...)
}

// Prompts returns the commands of all Prompt entries, oldest first.
func (s *State) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.transcript {
		if p, ok := e.(Prompt); ok {
			out = append(out, p.Command)
		}
	}
	return out
}

// Busy reports whether a command or a blocking follow-up is running.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy > 0
}

func (s *State) addBusy(delta int) {
	s.mu.Lock()
	s.busy += delta
	if s.busy < 0 {
		s.busy = 0
	}
	s.mu.Unlock()
}

// LoggedOut reports whether the user signed out in this session.
func (s *State) LoggedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOut
}

// AccountDeleted reports whether the user's account was deleted.
func (s *State) AccountDeleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountDeleted
}

func (s *State) markLoggedOut() {
	s.mu.Lock()
	s.loggedOut = true
	s.mu.Unlock()
}

func (s *State) markAccountDeleted() {
	s.mu.Lock()
	s.accountDeleted = true
	s.mu.Unlock()
}

func appendEvent(index int, e Entry) events.Event {
	ev := events.Event{Type: events.EventAppend, Index: index, Entry: e, Kind: events.KindOutput}
	switch v := e.(type) {
	case Prompt:
		ev.Kind = events.KindPrompt
		ev.Text = v.Command
		ev.Cwd = v.Cwd
	case Output:
		ev.Text = v.Text
		if v.Kind == OutputError {
			ev.Kind = events.KindError
		}
	case TextOutput:
		ev.Text = v.Text
	}
	return ev
}
