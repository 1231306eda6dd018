// Package terminal implements the command interpreter of the remote
// file-system terminal: tokenizing, dispatching commands to the action API,
// tracking the working directory and keeping the session transcript.
package terminal

import (
	"github.com/ayaxan7/betTermux/internal/netquality"
	"github.com/ayaxan7/betTermux/pkg/models"
)

// OutputKind classifies an Output entry for rendering.
type OutputKind int

const (
	OutputNormal OutputKind = iota
	OutputError
	OutputDirectory
	OutputFile
)

func (k OutputKind) String() string {
	switch k {
	case OutputError:
		return "error"
	case OutputDirectory:
		return "directory"
	case OutputFile:
		return "file"
	}
	return "normal"
}

// Entry is one line item of the session transcript.
type Entry interface {
	entry()
}

// Prompt echoes a submitted command with the display path at submission time.
type Prompt struct {
	Command string
	Cwd     string
}

// Output is plain text output.
type Output struct {
	Text string
	Kind OutputKind
}

// Listing is the content of a directory.
type Listing struct {
	Items []models.Node
}

// TextOutput is the content of a text-like file.
type TextOutput struct {
	Text string
}

// ImageOutput is the base64 content of an image file.
type ImageOutput struct {
	Base64Data string
}

// NetworkQualityOutput is a snapshot of the network test.
type NetworkQualityOutput struct {
	State netquality.TestState
}

func (Prompt) entry()               {}
func (Output) entry()               {}
func (Listing) entry()              {}
func (TextOutput) entry()           {}
func (ImageOutput) entry()          {}
func (NetworkQualityOutput) entry() {}

func normal(text string) Output {
	return Output{Text: text, Kind: OutputNormal}
}

func failure(text string) Output {
	return Output{Text: text, Kind: OutputError}
}

// IsError reports whether e is an error output.
func IsError(e Entry) bool {
	o, ok := e.(Output)
	return ok && o.Kind == OutputError
}
