package terminal

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayaxan7/betTermux/internal/logging"
	"github.com/ayaxan7/betTermux/internal/metrics"
	"github.com/ayaxan7/betTermux/internal/netquality"
	"github.com/ayaxan7/betTermux/internal/upload"
	"github.com/ayaxan7/betTermux/pkg/models"
	"github.com/ayaxan7/betTermux/pkg/protocol"
	"github.com/ayaxan7/betTermux/pkg/tree"
)

// FileSystem performs actions against the remote file-system API.
// A non-nil error means no envelope was received.
type FileSystem interface {
	PerformAction(ctx context.Context, action string, payload protocol.Payload) (*protocol.ActionResponse, error)
}

// Authenticator is the signed-in identity.
type Authenticator interface {
	CurrentUserID() (string, bool)
	SignOut(ctx context.Context) error
	DeleteAccount(ctx context.Context) error
}

// FilePicker asks the user for a local file.
type FilePicker interface {
	Pick(ctx context.Context) <-chan upload.Result
}

// NetworkTester runs the network quality test.
type NetworkTester interface {
	Begin()
	Run(ctx context.Context) error
	State() netquality.TestState
}

// Options configures an Interpreter. Only FileSystem is required.
type Options struct {
	FileSystem FileSystem
	Auth       Authenticator
	Picker     FilePicker
	Network    NetworkTester

	// EchoImplicitWrite enables "echo <content> <file>" without a redirection.
	EchoImplicitWrite bool
	Logger            *zap.Logger
}

type handlerFunc func(ctx context.Context, tokens []string) (Entry, error)

// Interpreter dispatches tokenized commands to their handlers.
type Interpreter struct {
	fs            FileSystem
	auth          Authenticator
	picker        FilePicker
	network       NetworkTester
	implicitWrite bool
	log           *zap.Logger

	state    *State
	handlers map[string]handlerFunc

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup

	pendingMu sync.Mutex
	pending   []func(ctx context.Context)
}

// NewInterpreter creates an interpreter operating on state.
func NewInterpreter(state *State, opts Options) *Interpreter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	in := &Interpreter{
		fs:            opts.FileSystem,
		auth:          opts.Auth,
		picker:        opts.Picker,
		network:       opts.Network,
		implicitWrite: opts.EchoImplicitWrite,
		log:           opts.Logger,
		state:         state,
		bgCtx:         ctx,
		bgCancel:      cancel,
	}
	in.handlers = map[string]handlerFunc{
		"ls":             in.ls,
		"cd":             in.cd,
		"cat":            in.cat,
		"mkdir":          in.mkdir,
		"touch":          in.touch,
		"rm":             in.rm,
		"pwd":            in.pwd,
		"echo":           in.echo,
		"history":        in.history,
		"clear":          in.clear,
		"logout":         in.logout,
		"deleteaccount":  in.deleteAccount,
		"upload":         in.upload,
		"networkquality": in.networkQuality,
		"help":           in.help,
	}
	return in
}

// Commands returns the names of all known commands.
func (in *Interpreter) Commands() []string {
	names := make([]string, 0, len(in.handlers))
	for name := range in.handlers {
		names = append(names, name)
	}
	return names
}

// Execute runs one command and returns its result entry. It never panics and
// never returns nil: every failure becomes an error Output.
func (in *Interpreter) Execute(ctx context.Context, tokens []string) Entry {
	entry, start := in.dispatch(ctx, tokens)
	start()
	return entry
}

// dispatch runs one command. Follow-ups the command scheduled are held back
// until start is called, so the caller can record the result first.
func (in *Interpreter) dispatch(ctx context.Context, tokens []string) (entry Entry, start func()) {
	defer func() { start = in.takePending() }()
	if len(tokens) == 0 {
		return normal(""), nil
	}

	name := tokens[0]
	handler, ok := in.handlers[name]
	label := name
	if !ok {
		label = "unknown"
	}

	began := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = panicErr(r)
			entry = failure(err.Error())
			in.log.Error("command panicked",
				logging.Command(name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
		result := "ok"
		switch {
		case err != nil:
			result = KindOf(err).String()
		case IsError(entry):
			result = "error"
		}
		metrics.RecordCommand(label, result, time.Since(began))
	}()

	if !ok {
		return failure("Unknown command: " + name), nil
	}

	entry, err = handler(ctx, tokens)
	if err != nil {
		in.log.Info("command failed",
			logging.Command(name),
			zap.String("kind", KindOf(err).String()),
			zap.Error(err))
		return failure(err.Error()), nil
	}
	if entry == nil {
		return normal(""), nil
	}
	return entry, nil
}

// Wait blocks until all background follow-ups have finished.
func (in *Interpreter) Wait() {
	in.wg.Wait()
}

// Close cancels background follow-ups and waits for them.
func (in *Interpreter) Close() {
	in.bgCancel()
	in.wg.Wait()
}

// background schedules fn to run detached from the command that started it.
func (in *Interpreter) background(fn func(ctx context.Context)) {
	in.pendingMu.Lock()
	in.pending = append(in.pending, fn)
	in.pendingMu.Unlock()
}

func (in *Interpreter) takePending() func() {
	in.pendingMu.Lock()
	tasks := in.pending
	in.pending = nil
	in.pendingMu.Unlock()
	return func() {
		for _, fn := range tasks {
			in.spawn(fn)
		}
	}
}

func (in *Interpreter) spawn(fn func(ctx context.Context)) {
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				in.log.Error("background task panicked", zap.Any("panic", r))
				in.state.Append(failure(fmt.Sprint("✗ Error: ", r)))
			}
		}()
		fn(in.bgCtx)
	}()
}

func (in *Interpreter) call(ctx context.Context, action string, payload protocol.Payload) (*protocol.ActionResponse, error) {
	if in.fs == nil {
		return nil, transportErr(errors.New("no file system configured"))
	}
	res, err := in.fs.PerformAction(ctx, action, payload)
	if err != nil {
		return nil, transportErr(err)
	}
	if res == nil {
		return nil, transportErr(errors.New(action + ": empty response"))
	}
	return res, nil
}

func (in *Interpreter) resolve(ctx context.Context, target string) (*protocol.ActionResponse, error) {
	cwd := in.state.Path().WorkingDirID
	return in.call(ctx, protocol.ActionResolveNodePath, protocol.ResolveNodePath(cwd, target))
}

func arg(tokens []string, i int) (string, bool) {
	if i < len(tokens) {
		return tokens[i], true
	}
	return "", false
}

func (in *Interpreter) ls(ctx context.Context, _ []string) (Entry, error) {
	res, err := in.call(ctx, protocol.ActionGetChildren, protocol.GetChildren(in.state.Path().WorkingDirID))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("Unknown error"))
	}
	if nodes, err := DecodeNodes(res.Data); err == nil && len(nodes) > 0 {
		return Listing{Items: nodes}, nil
	}
	return normal(StringifyData(res.Data)), nil
}

func (in *Interpreter) cd(ctx context.Context, tokens []string) (Entry, error) {
	target, ok := arg(tokens, 1)
	if !ok {
		target = tree.Home
	}

	current := in.state.Path()
	res, err := in.call(ctx, protocol.ActionResolveNodePath, protocol.ResolveNodePath(current.WorkingDirID, target))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("Directory not found"))
	}

	resolved, err := DecodePathResolution(res.Data)
	switch {
	case errors.Is(err, ErrMissingID):
		return nil, coercionErr("Invalid directory response", err)
	case err != nil:
		return nil, coercionErr("Directory not found", err)
	}

	in.state.setPath(current.Apply(resolved, target))
	return normal(""), nil
}

func (in *Interpreter) cat(ctx context.Context, tokens []string) (Entry, error) {
	file, ok := arg(tokens, 1)
	if !ok {
		return nil, usageErr("Usage: cat <file>")
	}

	res, err := in.resolve(ctx, file)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("File not found"))
	}
	resolved, err := DecodePathResolution(res.Data)
	if err != nil {
		return nil, coercionErr("Failed to resolve file path", err)
	}

	nodeRes, err := in.call(ctx, protocol.ActionGetNode, protocol.GetNode(resolved.NodeID()))
	if err != nil {
		return nil, partialErr(err.Error(), err)
	}
	if !nodeRes.Success {
		return nil, partialErr(nodeRes.ErrorOr("File not found"), nil)
	}
	node, err := DecodeFileNode(nodeRes.Data)
	if err != nil {
		return nil, coercionErr("Error: "+err.Error(), err)
	}

	switch {
	case node.IsImage():
		return ImageOutput{Base64Data: node.Content}, nil
	case node.IsText():
		return TextOutput{Text: node.Content}, nil
	}
	return failure(fmt.Sprintf("File type %s is not viewable in the terminal", node.MimeType)), nil
}

func (in *Interpreter) mkdir(ctx context.Context, tokens []string) (Entry, error) {
	name, ok := arg(tokens, 1)
	if !ok {
		return nil, usageErr("Usage: mkdir <dir>")
	}
	res, err := in.call(ctx, protocol.ActionCreateDirectoryNode,
		protocol.CreateDirectoryNode(name, in.state.Path().WorkingDirID))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("Failed to create directory"))
	}
	return normal("Directory created"), nil
}

func (in *Interpreter) touch(ctx context.Context, tokens []string) (Entry, error) {
	name, ok := arg(tokens, 1)
	if !ok {
		return nil, usageErr("Usage: touch <file>")
	}
	res, err := in.call(ctx, protocol.ActionCreateFileNode,
		protocol.CreateFileNode(name, in.state.Path().WorkingDirID, "", models.MimePlainText))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("Failed to create file"))
	}
	return normal("File created"), nil
}

func (in *Interpreter) rm(ctx context.Context, tokens []string) (Entry, error) {
	target, ok := arg(tokens, 1)
	if !ok {
		return nil, usageErr("Usage: rm <file|dir>")
	}

	res, err := in.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("Not found"))
	}
	resolved, err := DecodePathResolution(res.Data)
	if err != nil {
		return nil, coercionErr("Not found", err)
	}

	delRes, err := in.call(ctx, protocol.ActionDeleteNode, protocol.DeleteNode(resolved.NodeID()))
	if err != nil {
		return nil, err
	}
	if !delRes.Success {
		return nil, remoteErr(delRes.ErrorOr("Failed to delete"))
	}
	return normal("Deleted"), nil
}

func (in *Interpreter) pwd(ctx context.Context, _ []string) (Entry, error) {
	res, err := in.call(ctx, protocol.ActionGetNodePathString,
		protocol.GetNodePathString(in.state.Path().WorkingDirID))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("Failed to get path"))
	}
	return normal(StringifyData(res.Data)), nil
}

func (in *Interpreter) echo(ctx context.Context, tokens []string) (Entry, error) {
	plan := ParseEcho(tokens, in.implicitWrite)
	switch plan.Mode {
	case EchoInvalid:
		return nil, usageErr(plan.Message)
	case EchoWrite:
		return in.writeFile(ctx, plan)
	}
	return normal(plan.Text), nil
}

// writeFile creates or updates the plain text file named by plan.Target.
func (in *Interpreter) writeFile(ctx context.Context, plan EchoPlan) (Entry, error) {
	dir, name := tree.SplitTarget(plan.Target)
	if name == "" {
		return nil, usageErr("echo: missing output file")
	}

	parentID := in.state.Path().WorkingDirID
	if dir != "." && dir != "" {
		res, err := in.resolve(ctx, dir)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return nil, remoteErr(fmt.Sprintf("echo: directory for '%s' not found.", plan.Target))
		}
		parent, err := DecodePathResolution(res.Data)
		if err != nil {
			return nil, coercionErr("echo: could not resolve parent directory.", err)
		}
		parentID = parent.NodeID()
	}

	res, err := in.call(ctx, protocol.ActionGetChildren, protocol.GetChildren(parentID))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("echo: could not check for existing file."))
	}
	children, err := DecodeNodes(res.Data)
	if err != nil {
		return nil, coercionErr("echo: could not check for existing file.", err)
	}

	if _, ok := tree.FindByName(children, name, models.TypeDirectory); ok {
		return nil, usageErr(fmt.Sprintf("echo: cannot write to '%s': Is a directory", plan.Target))
	}

	if existing, ok := tree.FindByName(children, name, models.TypeFile); ok {
		if existing.MimeType != "" && existing.MimeType != models.MimePlainText {
			return nil, usageErr(fmt.Sprintf("echo: cannot write to '%s': Not a plain text file.", name))
		}
		res, err := in.call(ctx, protocol.ActionUpdateFileNodeContent,
			protocol.UpdateFileNodeContent(existing.ID, plan.Text, plan.Append))
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return nil, remoteErr(res.ErrorOr("Failed to update file"))
		}
		return normal(""), nil
	}

	res, err = in.call(ctx, protocol.ActionCreateFileNode,
		protocol.CreateFileNode(name, parentID, plan.Text, models.MimePlainText))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, remoteErr(res.ErrorOr("Failed to create file"))
	}
	return normal(""), nil
}

func (in *Interpreter) history(_ context.Context, _ []string) (Entry, error) {
	prompts := in.state.Prompts()
	lines := make([]string, len(prompts))
	for i, cmd := range prompts {
		lines[i] = fmt.Sprintf("  %d: %s", i+1, cmd)
	}
	return normal(strings.Join(lines, "\n")), nil
}

func (in *Interpreter) clear(_ context.Context, _ []string) (Entry, error) {
	in.state.Clear()
	return normal(""), nil
}

func (in *Interpreter) logout(ctx context.Context, _ []string) (Entry, error) {
	if in.auth != nil {
		if err := in.auth.SignOut(ctx); err != nil {
			return nil, remoteErr("Logout failed: " + err.Error())
		}
	}
	in.state.markLoggedOut()
	return normal("Logging out..."), nil
}

func (in *Interpreter) deleteAccount(_ context.Context, tokens []string) (Entry, error) {
	if in.auth == nil {
		return nil, usageErr("Error: You must be logged in to delete your account")
	}
	uid, ok := in.auth.CurrentUserID()
	if !ok {
		return nil, usageErr("Error: You must be logged in to delete your account")
	}
	if flag, _ := arg(tokens, 1); flag != "--confirm" {
		return failure("Warning: This will permanently delete your account and all associated data.\n" +
			"To confirm, type: deleteaccount --confirm"), nil
	}

	in.state.addBusy(1)
	in.background(func(ctx context.Context) {
		defer in.state.addBusy(-1)

		// Data and identity are deleted independently; each outcome is reported.
		res, err := in.call(ctx, protocol.ActionDeleteUserAccount, protocol.DeleteUserAccount(uid))
		switch {
		case err != nil:
			in.log.Warn("backend data deletion failed", zap.Error(err))
			in.state.Append(failure("Warning: Failed to delete your data from our servers. Please contact support."))
		case !res.Success:
			in.log.Warn("backend data deletion failed", zap.String("error", res.Error))
			in.state.Append(failure("Warning: Failed to delete your data from our servers. Please contact support."))
		default:
			summary := DecodeDeleteSummary(res.Data)
			in.log.Info("backend data deleted",
				zap.Int("deleted", summary.DeletedCount),
				zap.String("message", summary.Message))
			in.state.Append(normal(fmt.Sprintf(
				"Successfully deleted all user data: %d files and directories removed.", summary.DeletedCount)))
		}

		if err := in.auth.DeleteAccount(ctx); err != nil {
			in.log.Warn("account deletion failed", zap.Error(err))
			in.state.Append(failure(fmt.Sprintf(
				"Failed to delete account: %s\nYou may need to re-authenticate.", err)))
			return
		}
		in.state.markAccountDeleted()
	})

	return normal("Deleting account and all associated data..."), nil
}

func (in *Interpreter) upload(_ context.Context, tokens []string) (Entry, error) {
	if in.picker == nil {
		return nil, usageErr("upload: no file picker available")
	}
	target, named := arg(tokens, 1)

	picked := in.picker.Pick(in.bgCtx)
	in.background(func(ctx context.Context) {
		var r upload.Result
		select {
		case r = <-picked:
		case <-ctx.Done():
			return
		}
		if errors.Is(r.Err, upload.ErrCancelled) {
			in.state.Append(failure("⚠ File selection cancelled"))
			return
		}
		if r.Err != nil {
			in.state.Append(failure("✗ Error: " + r.Err.Error()))
			return
		}
		in.sendUpload(ctx, r.File, target)
	})

	msg := "Opening file picker... Select a file to upload"
	if named {
		msg += fmt.Sprintf(" as '%s'", target)
	}
	return normal(msg), nil
}

func (in *Interpreter) sendUpload(ctx context.Context, f *upload.File, target string) {
	in.state.addBusy(1)
	defer in.state.addBusy(-1)

	name := target
	if name == "" {
		name = f.Name
	}
	in.state.Append(normal(fmt.Sprintf("→ Processing file: %s (%s, %s)...", f.Name, f.MimeType, f.ReadableSize())))

	cwd := in.state.Path()
	res, err := in.call(ctx, protocol.ActionCreateFileNode,
		protocol.CreateFileNode(name, cwd.WorkingDirID, f.Content, f.MimeType))
	switch {
	case err != nil:
		in.state.Append(failure("✗ Error: " + err.Error()))
	case !res.Success:
		in.state.Append(failure("✗ Upload failed: " + res.ErrorOr("Unknown error")))
	default:
		in.log.Info("file uploaded", zap.String("name", name), zap.Int64("size", f.Size))
		in.state.Append(normal(fmt.Sprintf("✓ File uploaded successfully as '%s' to %s", name, cwd.DisplayPath)))
	}
}

func (in *Interpreter) networkQuality(_ context.Context, tokens []string) (Entry, error) {
	sub, _ := arg(tokens, 1)
	if in.network == nil && sub != "help" {
		return nil, usageErr("✗ Error: network testing is not configured")
	}

	switch sub {
	case "", "start":
		in.network.Begin()
		in.background(func(ctx context.Context) {
			err := in.network.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				in.log.Warn("network test failed to start", zap.Error(err))
				in.state.Append(failure("✗ Failed to start network test: " + err.Error()))
			}
		})
		return normal("→ Initializing network speed test..."), nil

	case "status":
		return NetworkQualityOutput{State: in.network.State()}, nil

	case "logs":
		logs := in.network.State().LogMessages
		if len(logs) == 0 {
			return normal("▤ No logs available"), nil
		}
		if len(logs) > 20 {
			logs = logs[:20]
		}
		frame := strings.Repeat("═", 40)
		var b strings.Builder
		b.WriteString("▤ Network Test Logs:\n")
		b.WriteString(frame + "\n")
		for _, line := range logs {
			b.WriteString("► " + line + "\n")
		}
		b.WriteString(frame + "\n")
		return normal(b.String()), nil

	case "help":
		return normal(networkHelpText), nil
	}

	return failure(fmt.Sprintf(
		"✗ Unknown networkquality command: %s\n? Use 'networkquality help' for available commands", sub)), nil
}

func (in *Interpreter) help(_ context.Context, _ []string) (Entry, error) {
	return normal(helpText), nil
}
