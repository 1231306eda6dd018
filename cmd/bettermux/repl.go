package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ayaxan7/betTermux/internal/events"
	"github.com/ayaxan7/betTermux/internal/render"
	"github.com/ayaxan7/betTermux/internal/suggest"
	"github.com/ayaxan7/betTermux/internal/terminal"
	"github.com/ayaxan7/betTermux/internal/upload"
)

const (
	keyCtrlN = 14
	keyCtrlP = 16

	clearScreen  = "\x1b[H\x1b[2J"
	uploadPrompt = "Path of file to upload (empty line cancels): "
	welcome      = "Welcome to bettermux. Type 'help' for available commands."
)

type repl struct {
	sess   *terminal.Session
	picker *upload.LinePicker
	sugg   *suggest.Manager
	r      *render.Renderer
	out    io.Writer

	// jsonEvents writes raw transcript events instead of rendered entries.
	jsonEvents bool
}

func cmdRepl(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	jsonEvents := fs.Bool("json", false, "Write transcript events as JSON lines (non-interactive input only)")
	a, err := setup(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()

	if _, ok := a.auth.CurrentUserID(); !ok {
		return errors.New("not logged in. Run 'bettermux login' first")
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		rp := newRepl(a, os.Stdout, false)
		rp.jsonEvents = *jsonEvents
		return rp.runScript(ctx, os.Stdin)
	}
	return runInteractive(ctx, a, fd)
}

func newRepl(a *app, out io.Writer, interactive bool) *repl {
	rp := &repl{
		picker: upload.NewLinePicker(a.cfg.MaxUploadSize),
		r:      render.New(os.Stdout, a.displayName()),
		out:    out,
	}
	var onChange func([]string)
	if interactive {
		onChange = rp.showSuggestions
	}
	rp.sugg = a.newSuggester(onChange)
	rp.sess = a.newSession(rp.picker, rp.sugg)
	a.log.Info("session started", zap.String("session_id", rp.sess.ID), zap.Bool("interactive", interactive))
	return rp
}

func (rp *repl) showSuggestions(items []string) {
	if hint := rp.r.Suggestions(items); hint != "" {
		fmt.Fprintln(rp.out, hint)
	}
}

func (rp *repl) close() {
	rp.picker.Cancel()
	rp.sugg.Close()
	rp.sess.Close()
}

// render writes transcript events to out until the session closes.
func (rp *repl) render(ch chan events.Event, withPrompts bool, done chan struct{}) {
	defer close(done)
	for ev := range ch {
		if rp.jsonEvents {
			data, err := events.MarshalEvent(ev)
			if err == nil {
				fmt.Fprintln(rp.out, string(data))
			}
			continue
		}
		if ev.Type == events.EventClear {
			io.WriteString(rp.out, clearScreen)
			continue
		}
		e, ok := ev.Entry.(terminal.Entry)
		if !ok {
			continue
		}
		if _, prompt := e.(terminal.Prompt); prompt && !withPrompts {
			continue
		}
		if s := rp.r.Format(e); s != "" {
			fmt.Fprintln(rp.out, s)
		}
	}
}

// submit runs line, or hands it to a pending upload request. It reports
// whether the session has ended.
func (rp *repl) submit(ctx context.Context, line string) bool {
	if rp.picker.Answer(line) {
		return false
	}
	rp.sess.Submit(ctx, line)

	// account deletion keeps the session busy until it ends it
	for rp.sess.Busy() {
		select {
		case <-ctx.Done():
			return true
		case <-time.After(50 * time.Millisecond):
		}
	}
	return rp.sess.Ended()
}

func (rp *repl) runScript(ctx context.Context, in io.Reader) error {
	ch := rp.sess.Subscribe()
	done := make(chan struct{})
	go rp.render(ch, true, done)
	defer func() {
		rp.close()
		<-done
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if rp.submit(ctx, scanner.Text()) {
			return nil
		}
	}
	rp.sess.Wait()
	return scanner.Err()
}

func runInteractive(ctx context.Context, a *app, fd int) error {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "")

	rp := newRepl(a, t, true)
	if w, h, err := term.GetSize(fd); err == nil {
		t.SetSize(w, h)
		rp.r.SetWidth(w)
	}
	t.AutoCompleteCallback = rp.complete

	ch := rp.sess.Subscribe()
	done := make(chan struct{})
	go rp.render(ch, false, done)
	defer func() {
		rp.close()
		<-done
	}()

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			term.Restore(fd, oldState)
			os.Exit(130)
		case <-exited:
		}
	}()

	fmt.Fprintln(t, welcome)
	for {
		if rp.picker.Pending() {
			t.SetPrompt(uploadPrompt)
		} else {
			t.SetPrompt(rp.r.PromptLine(rp.sess.Path().DisplayPath))
		}

		line, err := t.ReadLine()
		switch {
		case err == io.EOF:
			return nil
		case errors.Is(err, term.ErrPasteIndicator):
		case err != nil:
			return err
		}
		if rp.submit(ctx, line) {
			return nil
		}
	}
}

// complete handles keys the line editor passes through: Tab accepts the
// first suggestion, Ctrl-P and Ctrl-N walk the command history, and every
// printable key updates the input so suggestions follow typing.
func (rp *repl) complete(line string, pos int, key rune) (string, int, bool) {
	switch key {
	case '\t':
		items := rp.sess.Suggestions()
		if len(items) == 0 {
			return "", 0, false
		}
		rp.sess.SetInput(items[0])
		return items[0], len(items[0]), true
	case keyCtrlP:
		input, ok := rp.sess.HistoryUp()
		return input, len(input), ok
	case keyCtrlN:
		input, ok := rp.sess.HistoryDown()
		return input, len(input), ok
	}

	if rp.picker.Pending() || !unicode.IsPrint(key) {
		return "", 0, false
	}
	next := line[:pos] + string(key) + line[pos:]
	rp.sess.InputChanged(next)
	return next, pos + utf8.RuneLen(key), true
}
