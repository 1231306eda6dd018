// bettermux - terminal for a remote file system
//
// Commands typed at the prompt are interpreted locally and executed as
// file-system actions against the backend:
// - ls, cd, cat, mkdir, touch, rm, pwd, echo with redirection
// - upload of local files
// - network quality test
// - AI command suggestions (optional)
//
// Sub-commands:
//
//	bettermux [repl]                     Interactive terminal (default)
//	bettermux exec <command...>          Run one command and print the result
//	bettermux login -token T [-uid U]    Save an identity
//	bettermux logout                     Remove the saved identity
//	bettermux init                       Create the root directory for the user
//	bettermux whoami                     Show the current identity
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayaxan7/betTermux/internal/auth"
	"github.com/ayaxan7/betTermux/internal/config"
	"github.com/ayaxan7/betTermux/internal/logging"
	"github.com/ayaxan7/betTermux/internal/metrics"
	"github.com/ayaxan7/betTermux/internal/netquality"
	"github.com/ayaxan7/betTermux/internal/render"
	"github.com/ayaxan7/betTermux/internal/suggest"
	"github.com/ayaxan7/betTermux/internal/terminal"
	"github.com/ayaxan7/betTermux/pkg/client"
	"github.com/ayaxan7/betTermux/pkg/retry"
)

func main() {
	args := os.Args[1:]
	cmd := "repl"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "repl":
		err = cmdRepl(ctx, args)
	case "exec":
		err = cmdExec(ctx, args)
	case "login":
		err = cmdLogin(ctx, args)
	case "logout":
		err = cmdLogout(ctx, args)
	case "init":
		err = cmdInit(ctx, args)
	case "whoami":
		err = cmdWhoami(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", cmd)
		fmt.Fprintf(os.Stderr, "Usage: bettermux [repl|exec|login|logout|init|whoami] [flags]\n")
		os.Exit(2)
	}

	logging.Sync()
	switch {
	case errors.Is(err, errCommandFailed):
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// errCommandFailed makes exec exit non-zero after the error was printed.
var errCommandFailed = errors.New("command failed")

// app holds what every sub-command needs.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	auth   *auth.Session
	client *client.Client

	metricsServer *http.Server
}

func setup(ctx context.Context, fs *flag.FlagSet, args []string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	fs.StringVar(&cfg.APIURL, "api", cfg.APIURL, "Backend base URL")
	fs.StringVar(&cfg.RootID, "root", cfg.RootID, "Root directory id")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file (default stderr)")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogFile,
	}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	log := logging.L()

	var verifier *auth.Verifier
	if cfg.OIDCIssuerURL != "" {
		verifier, err = auth.NewVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("oidc: %w", err)
		}
	}

	session, err := auth.NewSession(ctx, auth.Config{
		Token:          cfg.Token,
		UID:            cfg.UID,
		Verifier:       verifier,
		IdentityURL:    cfg.IdentityURL,
		IdentityAPIKey: cfg.IdentityAPIKey,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts
	rc.OnRetry = func(attempt int, err error, wait time.Duration) {
		metrics.RecordRetry()
		log.Debug("retrying action",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	a := &app{
		cfg:  cfg,
		log:  log,
		auth: session,
		client: client.New(client.Config{
			BaseURL:     cfg.APIURL,
			ActionPath:  cfg.APIPath,
			Timeout:     cfg.Timeout,
			RetryConfig: rc,
			Tokens:      session,
			Logger:      log,
			Observer:    metrics.RecordAction,
		}),
	}

	if cfg.MetricsAddr != "" {
		a.metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			log.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := a.metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
	}
	return a, nil
}

func (a *app) close() {
	if a.metricsServer != nil {
		a.metricsServer.Close()
	}
}

// newSession wires the interpreter to the backend and the optional services.
func (a *app) newSession(picker terminal.FilePicker, suggester terminal.Suggester) *terminal.Session {
	return terminal.NewSession(terminal.SessionConfig{
		RootID:       a.cfg.RootID,
		HistoryLimit: a.cfg.HistoryLimit,
		Suggester:    suggester,
		Options: terminal.Options{
			FileSystem:        a.client,
			Auth:              a.auth,
			Picker:            picker,
			Network:           a.networkTester(),
			EchoImplicitWrite: a.cfg.EchoImplicitWrite,
			Logger:            a.log,
		},
	})
}

func (a *app) networkTester() terminal.NetworkTester {
	runner, err := netquality.NewRunner(netquality.RunnerConfig{
		BaseURL: a.cfg.SpeedTestURL,
		Logger:  a.log,
	})
	if err != nil {
		a.log.Warn("network test disabled", zap.Error(err))
		return netquality.NewManager(nil, a.log)
	}
	return netquality.NewManager(runner, a.log)
}

func (a *app) newSuggester(onChange func([]string)) *suggest.Manager {
	var completer suggest.Completer
	if a.cfg.SuggestionsEnabled() {
		completer = suggest.NewOpenAICompleter(a.cfg.AIAPIKey, a.cfg.AIBaseURL, a.cfg.AIModel)
	}
	return suggest.NewManager(completer, suggest.Config{
		Debounce: a.cfg.SuggestDebounce,
		Logger:   a.log,
		OnChange: onChange,
	})
}

// displayName picks the name shown in the prompt line.
func (a *app) displayName() string {
	c := a.auth.Claims()
	switch {
	case c == nil:
		return "user"
	case strings.TrimSpace(c.Name) != "":
		return strings.Fields(c.Name)[0]
	case c.Email != "":
		return strings.SplitN(c.Email, "@", 2)[0]
	}
	return "user"
}

func cmdExec(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	a, err := setup(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()

	if fs.NArg() == 0 {
		return errors.New("usage: bettermux exec <command...>")
	}
	if _, ok := a.auth.CurrentUserID(); !ok {
		return errors.New("not logged in. Run 'bettermux login' first")
	}

	sess := a.newSession(nil, nil)
	defer sess.Close()

	sess.Submit(ctx, strings.Join(fs.Args(), " "))
	sess.Wait()

	r := render.New(os.Stdout, a.displayName())
	failed := false
	for _, e := range sess.Transcript() {
		if _, ok := e.(terminal.Prompt); ok {
			continue
		}
		if terminal.IsError(e) {
			failed = true
		}
		if err := r.Entry(e); err != nil {
			return err
		}
	}
	if failed {
		return errCommandFailed
	}
	return nil
}

func cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "ID token")
	uid := fs.String("uid", "", "User id (required for opaque tokens)")
	a, err := setup(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()

	if *token == "" && *uid == "" {
		return errors.New("-token or -uid is required")
	}
	claims, err := a.auth.Login(ctx, *token, *uid, a.cfg.APIURL)
	if err != nil {
		return err
	}
	fmt.Printf("Login successful! Logged in as %s. Token saved to %s\n", claims.UserID, auth.TokenFilePath())
	return nil
}

func cmdLogout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	a, err := setup(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()

	if _, ok := a.auth.CurrentUserID(); !ok {
		fmt.Fprintln(os.Stderr, "No saved identity found.")
		return nil
	}
	if err := a.auth.SignOut(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out successfully.")
	return nil
}

func cmdInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	a, err := setup(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()

	uid, ok := a.auth.CurrentUserID()
	if !ok {
		return client.ErrNotAuthenticated
	}
	res, err := a.client.InitializeFileSystem(ctx, uid)
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.ErrorOr("Failed to initialize file system"))
	}
	fmt.Println("File system initialized.")
	return nil
}

func cmdWhoami(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	a, err := setup(ctx, fs, args)
	if err != nil {
		return err
	}
	defer a.close()

	c := a.auth.Claims()
	if c == nil || c.UserID == "" {
		fmt.Println("Not logged in.")
		return nil
	}
	fmt.Printf("UID:     %s\n", c.UserID)
	if c.Name != "" {
		fmt.Printf("Name:    %s\n", c.Name)
	}
	if c.Email != "" {
		fmt.Printf("Email:   %s\n", c.Email)
	}
	if !c.ExpiresAt.IsZero() {
		fmt.Printf("Expires: %s\n", c.ExpiresAt.Format(time.RFC3339))
	}
	status := "online"
	if err := a.client.Ping(ctx); err != nil {
		status = "offline (" + err.Error() + ")"
	}
	fmt.Printf("Server:  %s [%s]\n", a.cfg.APIURL, status)
	return nil
}
