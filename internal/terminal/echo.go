package terminal

import "strings"

const (
	redirectAppend    = ">>"
	redirectOverwrite = ">"
)

// EchoMode says what an echo command does.
type EchoMode int

const (
	EchoPrint EchoMode = iota
	EchoWrite
	EchoInvalid
)

// EchoPlan is a parsed echo command.
type EchoPlan struct {
	Mode    EchoMode
	Text    string // printed text, or the content to write
	Target  string // file path for EchoWrite
	Append  bool
	Message string // error for EchoInvalid
}

// ParseEcho parses tokens starting with "echo". With implicitWrite set,
// "echo <content...> <file>" without a redirection operator writes content
// to file when the last token has no quotes.
func ParseEcho(tokens []string, implicitWrite bool) EchoPlan {
	line := strings.Join(tokens, " ")

	if implicitWrite && !strings.Contains(line, redirectOverwrite) && len(tokens) >= 3 {
		last := tokens[len(tokens)-1]
		if !strings.ContainsAny(last, "\"' ") {
			return EchoPlan{
				Mode:   EchoWrite,
				Text:   strings.Join(tokens[1:len(tokens)-1], " "),
				Target: last,
			}
		}
	}

	var op string
	switch {
	case strings.Contains(line, redirectAppend):
		op = redirectAppend
	case strings.Contains(line, redirectOverwrite):
		op = redirectOverwrite
	default:
		return EchoPlan{Mode: EchoPrint, Text: strings.Join(tokens[1:], " ")}
	}

	before, after, _ := strings.Cut(line, op)
	content := before
	if i := strings.Index(before, "echo"); i >= 0 {
		content = before[i+len("echo"):]
	}
	target := strings.TrimSpace(after)
	if target == "" {
		return EchoPlan{Mode: EchoInvalid, Message: "echo: missing output file"}
	}
	return EchoPlan{
		Mode:   EchoWrite,
		Text:   strings.TrimSpace(content),
		Target: target,
		Append: op == redirectAppend,
	}
}
