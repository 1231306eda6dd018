// Package render draws transcript entries on a terminal.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gabriel-vasile/mimetype"

	"github.com/ayaxan7/betTermux/internal/netquality"
	"github.com/ayaxan7/betTermux/internal/terminal"
	"github.com/ayaxan7/betTermux/internal/upload"
	"github.com/ayaxan7/betTermux/pkg/models"
)

const (
	DefaultWidth = 80
	Hostname     = "bettermux"

	barWidth  = 30
	columnGap = 2
)

// Renderer formats entries for one output stream. Colors follow the
// capabilities of w, so a pipe or buffer receives plain text.
type Renderer struct {
	w     io.Writer
	user  string
	width int

	userHost lipgloss.Style
	path     lipgloss.Style
	command  lipgloss.Style
	errText  lipgloss.Style
	dir      lipgloss.Style
	dim      lipgloss.Style
	title    lipgloss.Style
	good     lipgloss.Style
	bad      lipgloss.Style
	panel    lipgloss.Style
}

// New returns a renderer writing to w. user is shown in the prompt line.
func New(w io.Writer, user string) *Renderer {
	if user == "" {
		user = "user"
	}
	lr := lipgloss.NewRenderer(w)
	return &Renderer{
		w:        w,
		user:     user,
		width:    DefaultWidth,
		userHost: lr.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		path:     lr.NewStyle().Foreground(lipgloss.Color("#4FC3F7")),
		command:  lr.NewStyle().Foreground(lipgloss.Color("#80CBC4")),
		errText:  lr.NewStyle().Foreground(lipgloss.Color("#F44336")),
		dir:      lr.NewStyle().Foreground(lipgloss.Color("#2196F3")).Bold(true),
		dim:      lr.NewStyle().Foreground(lipgloss.Color("240")),
		title:    lr.NewStyle().Bold(true),
		good:     lr.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
		bad:      lr.NewStyle().Foreground(lipgloss.Color("#FF5722")),
		panel: lr.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}

// SetWidth sets the column budget used for listings.
func (r *Renderer) SetWidth(width int) {
	if width > 0 {
		r.width = width
	}
}

// SetUser changes the name shown in the prompt line.
func (r *Renderer) SetUser(user string) {
	if user != "" {
		r.user = user
	}
}

// Entry writes e followed by a newline. Empty outputs write nothing.
func (r *Renderer) Entry(e terminal.Entry) error {
	s := r.Format(e)
	if s == "" {
		return nil
	}
	_, err := io.WriteString(r.w, s+"\n")
	return err
}

// Format returns the rendered form of e without a trailing newline.
func (r *Renderer) Format(e terminal.Entry) string {
	switch e := e.(type) {
	case terminal.Prompt:
		return r.PromptLine(e.Cwd) + r.command.Render(e.Command)
	case terminal.Output:
		return r.output(e)
	case terminal.Listing:
		return r.listing(e.Items)
	case terminal.TextOutput:
		return e.Text
	case terminal.ImageOutput:
		return r.image(e.Base64Data)
	case terminal.NetworkQualityOutput:
		return r.network(e.State)
	}
	return ""
}

// PromptLine renders "user@bettermux:cwd$ ".
func (r *Renderer) PromptLine(cwd string) string {
	return r.userHost.Render(r.user+"@"+Hostname) + ":" + r.path.Render(cwd) + "$ "
}

// Suggestions renders a one-line hint of AI suggestions.
func (r *Renderer) Suggestions(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return r.dim.Render("suggestions: " + strings.Join(items, " | ") + "  (Tab accepts the first)")
}

func (r *Renderer) output(o terminal.Output) string {
	if o.Text == "" {
		return ""
	}
	switch o.Kind {
	case terminal.OutputError:
		return r.errText.Render(o.Text)
	case terminal.OutputDirectory:
		return r.dir.Render(o.Text)
	}
	return o.Text
}

func (r *Renderer) listing(items []models.Node) string {
	if len(items) == 0 {
		return ""
	}

	names := make([]string, len(items))
	widest := 0
	for i, n := range items {
		names[i] = n.Name
		if n.IsDir() {
			names[i] += "/"
		}
		widest = max(widest, lipgloss.Width(names[i]))
	}

	cols := max(1, (r.width+columnGap)/(widest+columnGap))
	rows := (len(items) + cols - 1) / cols

	var b strings.Builder
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			i := col*rows + row
			if i >= len(items) {
				break
			}
			cell := names[i]
			if items[i].IsDir() {
				cell = r.dir.Render(cell)
			}
			b.WriteString(cell)
			if next := (col+1)*rows + row; next < len(items) {
				b.WriteString(strings.Repeat(" ", widest-lipgloss.Width(names[i])+columnGap))
			}
		}
		if row < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (r *Renderer) image(data string) string {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return r.errText.Render("[image: invalid data]")
	}
	desc := ImageSummary(raw)
	return r.dim.Render("[image: " + desc + "]")
}

// ImageSummary describes raw image bytes as "image/png, 1.2 KB, 10x20".
// Dimensions are omitted for formats that cannot be decoded.
func ImageSummary(raw []byte) string {
	parts := []string{mimetype.Detect(raw).String(), upload.ReadableSize(int64(len(raw)))}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
		parts = append(parts, fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
	}
	return strings.Join(parts, ", ")
}

func (r *Renderer) network(s netquality.TestState) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	lines = append(lines, r.title.Render("Network Quality Test"))
	status := s.Status()
	switch status {
	case "FAILED":
		status = r.bad.Render(status)
	case "RUNNING", "COMPLETED":
		status = r.good.Render(status)
	}
	add("Status: %s", status)

	if s.IsRunning {
		if s.CurrentPhase != "" {
			add("Phase: %s", s.CurrentPhase)
		}
		add("%s  %d/%d", netquality.ProgressBar(s.Progress, s.ProgressMax, barWidth), s.Progress, s.ProgressMax)
		if s.CurrentTestValue != "" {
			add("Current: %s", s.CurrentTestValue)
		}
	}
	if s.ServerDomain != "" {
		add("Server: %s", s.ServerDomain)
	}
	if s.ConnectionType != "" {
		add("Connection: %s", s.ConnectionType)
	}

	if s.DownloadSpeed > 0 || s.UploadSpeed > 0 {
		lines = append(lines, "", r.title.Render("Speed Results"))
		add("Download: %.2f Mbps  %s", s.DownloadSpeed, netquality.SpeedRating(s.DownloadSpeed))
		add("Upload:   %.2f Mbps  %s", s.UploadSpeed, netquality.SpeedRating(s.UploadSpeed))
	}
	if s.Ping > 0 {
		lines = append(lines, "", r.title.Render("Latency Results"))
		add("Ping:   %d ms  %s", s.Ping, netquality.PingRating(s.Ping))
		add("Jitter: %d ms  %s", s.Jitter, netquality.JitterRating(s.Jitter))
	}
	if s.PacketLoss != nil {
		add("Packet Loss: %.2f%%  %s", *s.PacketLoss, netquality.PacketLossRating(*s.PacketLoss))
	}
	if s.Error != "" {
		lines = append(lines, "", r.errText.Render("✗ "+s.Error))
	}

	return r.panel.Render(strings.Join(lines, "\n"))
}
