// Package upload reads local files for the upload command and hands them to
// the terminal through a picker.
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrCancelled = errors.New("file selection cancelled")
	ErrTooLarge  = errors.New("file too large")
)

// File is a picked file ready to send as node content.
type File struct {
	Name     string
	Path     string
	MimeType string
	Size     int64
	Content  string
	// Base64 is set when Content holds base64-encoded binary data.
	Base64 bool
}

// ReadableSize formats Size, e.g. "1.5 KB".
func (f *File) ReadableSize() string {
	return ReadableSize(f.Size)
}

// Result is delivered once per Pick.
type Result struct {
	File *File
	Err  error
}

// IsTextMime reports whether content of this type is sent as plain text.
func IsTextMime(mime string) bool {
	return strings.HasPrefix(mime, "text/") ||
		mime == "application/json" ||
		mime == "application/xml" ||
		mime == "application/javascript" ||
		mime == "application/typescript"
}

// ReadFile loads path, sniffing its MIME type from content. Text is returned
// verbatim; anything else is base64 encoded. maxSize <= 0 disables the limit.
func ReadFile(path string, maxSize int64) (*File, error) {
	path = expandHome(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, ReadableSize(info.Size()), ReadableSize(maxSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file: %w", err)
	}

	mime := baseMime(mimetype.Detect(data).String())
	f := &File{
		Name:     filepath.Base(path),
		Path:     path,
		MimeType: mime,
		Size:     int64(len(data)),
	}
	if IsTextMime(mime) {
		f.Content = string(data)
	} else {
		f.Content = base64.StdEncoding.EncodeToString(data)
		f.Base64 = true
	}
	return f, nil
}

// baseMime drops parameters such as "; charset=utf-8".
func baseMime(m string) string {
	base, _, _ := strings.Cut(m, ";")
	return strings.TrimSpace(base)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ReadableSize formats a byte count with one decimal and a binary unit.
func ReadableSize(size int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(size)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}

// LinePicker is answered by the next line the user types: a local path, or
// an empty line to cancel.
type LinePicker struct {
	maxSize int64

	mu      sync.Mutex
	pending chan Result
	done    chan struct{}
}

// NewLinePicker creates a picker that rejects files above maxSize bytes.
func NewLinePicker(maxSize int64) *LinePicker {
	return &LinePicker{maxSize: maxSize}
}

// Pick registers a request and returns the channel its Result arrives on.
// A request still pending is cancelled first. The request is cancelled when
// ctx ends.
func (p *LinePicker) Pick(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	done := make(chan struct{})

	p.mu.Lock()
	p.resolveLocked(Result{Err: ErrCancelled})
	p.pending, p.done = ch, done
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.pending == ch {
				p.resolveLocked(Result{Err: ErrCancelled})
			}
			p.mu.Unlock()
		case <-done:
		}
	}()
	return ch
}

// Pending reports whether a request is waiting for an answer.
func (p *LinePicker) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Answer resolves the pending request with the file at line.
// It returns false when nothing was pending.
func (p *LinePicker) Answer(line string) bool {
	path := strings.TrimSpace(line)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return false
	}
	if path == "" {
		p.resolveLocked(Result{Err: ErrCancelled})
		return true
	}
	f, err := ReadFile(path, p.maxSize)
	p.resolveLocked(Result{File: f, Err: err})
	return true
}

// Cancel resolves any pending request as cancelled.
func (p *LinePicker) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolveLocked(Result{Err: ErrCancelled})
}

func (p *LinePicker) resolveLocked(r Result) {
	if p.pending == nil {
		return
	}
	p.pending <- r
	close(p.done)
	p.pending, p.done = nil, nil
}
