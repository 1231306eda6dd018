package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures a Session.
type Config struct {
	Store *Store

	// Token and UID override the saved token file when set.
	Token string
	UID   string

	Verifier *Verifier

	// IdentityURL is the identity provider REST base, e.g.
	// https://identitytoolkit.googleapis.com/v1.
	IdentityURL    string
	IdentityAPIKey string

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Session holds the signed-in user for one terminal run.
type Session struct {
	store       *Store
	verifier    *Verifier
	identityURL string
	apiKey      string
	httpClient  *http.Client
	log         *zap.Logger

	mu     sync.RWMutex
	token  string
	claims *Claims
}

// NewSession loads the identity from cfg or the token file.
// A missing identity is not an error; CurrentUserID reports it.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		cfg.Store = NewStore("")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Session{
		store:       cfg.Store,
		verifier:    cfg.Verifier,
		identityURL: strings.TrimSuffix(cfg.IdentityURL, "/"),
		apiKey:      cfg.IdentityAPIKey,
		httpClient:  cfg.HTTPClient,
		log:         cfg.Logger.Named("auth"),
	}

	token, uid := cfg.Token, cfg.UID
	if token == "" && uid == "" {
		tf, err := cfg.Store.Load()
		switch {
		case errors.Is(err, ErrNotLoggedIn):
			return s, nil
		case err != nil:
			return nil, err
		}
		token, uid = tf.Token, tf.UID
		if tf.IsExpired(0) {
			s.log.Warn("saved token has expired", zap.Time("expires_at", tf.ExpiresAt))
		}
	}

	claims, err := s.identify(ctx, token, uid)
	if err != nil {
		return nil, err
	}
	s.token, s.claims = token, claims
	return s, nil
}

// identify derives claims from token, preferring explicit uid.
func (s *Session) identify(ctx context.Context, token, uid string) (*Claims, error) {
	if token == "" {
		if uid == "" {
			return nil, ErrNotLoggedIn
		}
		return &Claims{UserID: uid}, nil
	}

	var claims *Claims
	var err error
	if s.verifier != nil {
		claims, err = s.verifier.Verify(ctx, token)
	} else {
		claims, err = ParseUnverified(token)
	}
	if err != nil {
		if uid == "" {
			return nil, err
		}
		// Opaque tokens are accepted when the uid is given explicitly.
		s.log.Debug("token is not a readable ID token", zap.Error(err))
		claims = &Claims{}
	}
	if uid != "" {
		claims.UserID = uid
	}
	return claims, nil
}

// Login validates token, persists it, and makes it current.
func (s *Session) Login(ctx context.Context, token, uid, server string) (*Claims, error) {
	claims, err := s.identify(ctx, token, uid)
	if err != nil {
		return nil, err
	}
	tf := &TokenFile{
		Token:     token,
		UID:       claims.UserID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt,
		Server:    server,
	}
	if err := s.store.Save(tf); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}

	s.mu.Lock()
	s.token, s.claims = token, claims
	s.mu.Unlock()
	s.log.Info("logged in", zap.String("uid", claims.UserID))
	return claims, nil
}

// CurrentUserID returns the signed-in user id.
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil || s.claims.UserID == "" {
		return "", false
	}
	return s.claims.UserID, true
}

// Claims returns a copy of the current claims, or nil when signed out.
func (s *Session) Claims() *Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return nil
	}
	c := *s.claims
	return &c
}

// UID implements client.TokenSource.
func (s *Session) UID() (string, bool) {
	return s.CurrentUserID()
}

// Token implements client.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SignOut forgets the identity and removes the saved token.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.store.Delete(); err != nil {
		return fmt.Errorf("remove token file: %w", err)
	}
	s.clear()
	s.log.Info("signed out")
	return nil
}

func (s *Session) clear() {
	s.mu.Lock()
	s.token, s.claims = "", nil
	s.mu.Unlock()
}

// DeleteAccount deletes the user at the identity provider, then signs out.
func (s *Session) DeleteAccount(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return ErrNotLoggedIn
	}
	if s.identityURL == "" {
		return fmt.Errorf("identity provider not configured")
	}

	endpoint := s.identityURL + "/accounts:delete"
	if s.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(s.apiKey)
	}
	body, _ := json.Marshal(map[string]string{"idToken": token})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete account request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete account failed (%d): %s", resp.StatusCode, identityError(resp.Body))
	}

	if err := s.store.Delete(); err != nil {
		s.log.Warn("account deleted but token file remains", zap.Error(err))
	}
	s.clear()
	s.log.Info("account deleted")
	return nil
}

// identityError extracts error.message from an identity provider error body.
func identityError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(data))
}
