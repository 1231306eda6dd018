package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayaxan7/betTermux/internal/netquality"
	"github.com/ayaxan7/betTermux/internal/terminal"
	"github.com/ayaxan7/betTermux/pkg/models"
)

func TestPromptAndOutputs(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, "ada")

	require.NoError(t, r.Entry(terminal.Prompt{Command: "ls", Cwd: "~/docs"}))
	require.NoError(t, r.Entry(terminal.Output{Text: "Directory created"}))
	require.NoError(t, r.Entry(terminal.Output{Text: ""}))
	require.NoError(t, r.Entry(terminal.Output{Text: "boom", Kind: terminal.OutputError}))
	require.NoError(t, r.Entry(terminal.TextOutput{Text: "line1\nline2"}))

	assert.Equal(t, "ada@bettermux:~/docs$ ls\nDirectory created\nboom\nline1\nline2\n", buf.String())
}

func TestListingColumns(t *testing.T) {
	r := New(&bytes.Buffer{}, "")
	r.SetWidth(20)

	items := []models.Node{
		{Name: "alpha", Type: models.TypeDirectory},
		{Name: "b.txt", Type: models.TypeFile},
		{Name: "c", Type: models.TypeFile},
		{Name: "delta", Type: models.TypeDirectory},
	}
	got := r.Format(terminal.Listing{Items: items})
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "alpha/  c", lines[0])
	assert.Equal(t, "b.txt   delta/", lines[1])

	assert.Empty(t, r.Format(terminal.Listing{}))
}

func TestListingSingleColumnWhenNarrow(t *testing.T) {
	r := New(&bytes.Buffer{}, "")
	r.SetWidth(4)
	got := r.Format(terminal.Listing{Items: []models.Node{{Name: "long-name"}, {Name: "x"}}})
	assert.Equal(t, "long-name\nx", got)
}

func TestImageSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))))

	r := New(&bytes.Buffer{}, "")
	got := r.Format(terminal.ImageOutput{Base64Data: base64.StdEncoding.EncodeToString(buf.Bytes())})
	assert.Contains(t, got, "image/png")
	assert.Contains(t, got, "3x2")

	assert.Equal(t, "[image: invalid data]", r.Format(terminal.ImageOutput{Base64Data: "%%%"}))
	assert.Len(t, strings.Split(ImageSummary([]byte("plain text")), ", "), 2, "no dimensions for undecodable data")
}

func TestNetworkPanel(t *testing.T) {
	r := New(&bytes.Buffer{}, "")
	loss := 0.0

	running := netquality.NewTestState()
	running.IsRunning = true
	running.CurrentPhase = "Download"
	running.Progress = 120
	got := r.Format(terminal.NetworkQualityOutput{State: running})
	assert.Contains(t, got, "Status: RUNNING")
	assert.Contains(t, got, "Phase: Download")
	assert.Contains(t, got, "50%")
	assert.NotContains(t, got, "Speed Results")

	done := netquality.NewTestState()
	done.IsCompleted = true
	done.DownloadSpeed = 120.5
	done.UploadSpeed = 8
	done.Ping = 15
	done.Jitter = 40
	done.PacketLoss = &loss
	got = r.Format(terminal.NetworkQualityOutput{State: done})
	assert.Contains(t, got, "Status: COMPLETED")
	assert.Contains(t, got, "Download: 120.50 Mbps  ★ Excellent")
	assert.Contains(t, got, "Upload:   8.00 Mbps  ▽ Slow")
	assert.Contains(t, got, "Ping:   15 ms  ★ Excellent")
	assert.Contains(t, got, "Jitter: 40 ms  ▽ Poor")
	assert.Contains(t, got, "Packet Loss: 0.00%  ★ Perfect")

	failed := netquality.NewTestState()
	failed.Error = "server unreachable"
	got = r.Format(terminal.NetworkQualityOutput{State: failed})
	assert.Contains(t, got, "Status: FAILED")
	assert.Contains(t, got, "✗ server unreachable")
}

func TestSuggestions(t *testing.T) {
	r := New(&bytes.Buffer{}, "")
	assert.Empty(t, r.Suggestions(nil))
	assert.Contains(t, r.Suggestions([]string{"ls", "cd docs"}), "ls | cd docs")
}
