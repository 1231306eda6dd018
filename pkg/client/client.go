// Package client provides the HTTP client for the file-system action API,
// with retry, online tracking, and bearer auth.
package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayaxan7/betTermux/pkg/protocol"
	"github.com/ayaxan7/betTermux/pkg/retry"
)

// DefaultActionPath is the endpoint every action is posted to.
const DefaultActionPath = "/api/fs"

// ErrNotAuthenticated is returned when no user identity is available.
var ErrNotAuthenticated = errors.New("User not authenticated. Please login first.")

// TokenSource supplies the caller identity injected into every request.
type TokenSource interface {
	// UID returns the user id placed in the request envelope.
	UID() (string, bool)
	// Token returns the bearer token, or "" to send no Authorization header.
	Token() string
}

// StaticTokens is a TokenSource with fixed values.
type StaticTokens struct {
	UserID      string
	BearerToken string
}

// UID implements TokenSource.
func (s StaticTokens) UID() (string, bool) { return s.UserID, s.UserID != "" }

// Token implements TokenSource.
func (s StaticTokens) Token() string { return s.BearerToken }

// ActionObserver is notified after every action attempt sequence completes.
type ActionObserver func(action, status string, duration time.Duration)

// Client issues file-system actions against the backend.
type Client struct {
	baseURL     string
	actionPath  string
	httpClient  *http.Client
	retryConfig retry.Config
	tokens      TokenSource
	log         *zap.Logger
	observe     ActionObserver

	mu       sync.RWMutex
	online   bool
	lastPing time.Time
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	ActionPath  string
	Timeout     time.Duration
	RetryConfig retry.Config
	Tokens      TokenSource
	Logger      *zap.Logger
	Observer    ActionObserver
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.ActionPath == "" {
		cfg.ActionPath = DefaultActionPath
	}
	if cfg.Tokens == nil {
		cfg.Tokens = StaticTokens{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		actionPath: cfg.ActionPath,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		tokens:      cfg.Tokens,
		log:         cfg.Logger.Named("client"),
		observe:     cfg.Observer,
		online:      true,
	}
}

// SetTokens replaces the identity source, e.g. after login or logout.
func (c *Client) SetTokens(tokens TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tokens == nil {
		tokens = StaticTokens{}
	}
	c.tokens = tokens
}

func (c *Client) identity() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// IsOnline returns true if the server answered the last request.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			c.log.Info("server is back online", zap.String("url", c.baseURL))
		} else {
			c.log.Warn("server is offline", zap.String("url", c.baseURL))
		}
	}
	c.online = online
	c.lastPing = time.Now()
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	c.setOnline(true)
	return nil
}

// PerformAction posts one action for the authenticated user.
// A backend-level failure comes back as a response with Success=false; the
// returned error is reserved for transport failures.
func (c *Client) PerformAction(ctx context.Context, action string, payload protocol.Payload) (*protocol.ActionResponse, error) {
	uid, ok := c.identity().UID()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return c.do(ctx, protocol.ActionRequest{Action: action, UID: uid, Payload: payload})
}

// InitializeFileSystem creates the root directory for a newly registered user.
func (c *Client) InitializeFileSystem(ctx context.Context, uid string) (*protocol.ActionResponse, error) {
	return c.do(ctx, protocol.ActionRequest{
		Action:  protocol.ActionInitializeFileSystem,
		UID:     uid,
		Payload: protocol.Payload{},
	})
}

func (c *Client) do(ctx context.Context, ar protocol.ActionRequest) (*protocol.ActionResponse, error) {
	body, err := json.Marshal(ar)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", ar.Action, err)
	}

	start := time.Now()
	c.log.Debug("performing action", zap.String("action", ar.Action), zap.Any("payload", redact(ar.Payload)))

	// Writes are only resent when the request never reached the server.
	readOnly := protocol.IsReadOnly(ar.Action)
	retryable := func(err error) error {
		if readOnly || isDialError(err) {
			return retry.Retryable(err)
		}
		return err
	}

	result, err := retry.DoWithResult(ctx, c.retryConfig, func() (*protocol.ActionResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.actionPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept-Encoding", "gzip")
		if token := c.identity().Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.setOnline(false)
			return nil, retryable(err)
		}
		defer resp.Body.Close()

		var reader io.Reader = resp.Body
		if resp.Header.Get("Content-Encoding") == "gzip" {
			gr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return nil, err
			}
			defer gr.Close()
			reader = gr
		}

		data, err := io.ReadAll(reader)
		if err != nil {
			c.setOnline(false)
			return nil, retryable(fmt.Errorf("read response: %w", err))
		}

		if resp.StatusCode >= 500 {
			c.setOnline(false)
			return nil, retryable(fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
		}
		c.setOnline(true)

		var out protocol.ActionResponse
		if err := json.Unmarshal(data, &out); err != nil {
			if resp.StatusCode >= 300 {
				return &protocol.ActionResponse{
					Success: false,
					Error:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
				}, nil
			}
			return nil, fmt.Errorf("decode %s response: %w", ar.Action, err)
		}
		if resp.StatusCode >= 300 && out.Success {
			out.Success = false
		}
		if !out.Success && out.Error == "" && resp.StatusCode >= 300 {
			out.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return &out, nil
	})

	status := "success"
	switch {
	case err != nil:
		status = "transport_error"
		err = retry.Unwrap(err)
	case !result.Success:
		status = "failure"
	}
	if c.observe != nil {
		c.observe(ar.Action, status, time.Since(start))
	}

	if err != nil {
		c.log.Warn("action failed", zap.String("action", ar.Action), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", ar.Action, err)
	}
	c.log.Debug("action completed",
		zap.String("action", ar.Action),
		zap.Bool("success", result.Success),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// redact hides file content from debug logs.
func redact(p protocol.Payload) protocol.Payload {
	out := make(protocol.Payload, len(p))
	for k, v := range p {
		switch k {
		case "content", "newContent":
			if s, ok := v.(string); ok {
				out[k] = fmt.Sprintf("<%d bytes>", len(s))
				continue
			}
		}
		out[k] = v
	}
	return out
}
