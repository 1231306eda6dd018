package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func tempStore(t *testing.T) *Store {
	return NewStore(filepath.Join(t.TempDir(), "bettermux", "token.json"))
}

func TestParseUnverified(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{
		"user_id": "u-123",
		"sub":     "other",
		"email":   "ada@example.com",
		"exp":     exp.Unix(),
	})

	claims, err := ParseUnverified(token)
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if claims.UserID != "u-123" {
		t.Errorf("user_id should win over sub, got %q", claims.UserID)
	}
	if claims.Email != "ada@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("expires = %v, want %v", claims.ExpiresAt, exp)
	}
}

func TestParseUnverified_SubFallbackAndErrors(t *testing.T) {
	claims, err := ParseUnverified(signedToken(t, jwt.MapClaims{"sub": "s-1"}))
	if err != nil || claims.UserID != "s-1" {
		t.Fatalf("expected sub fallback, got %+v %v", claims, err)
	}
	if _, err := ParseUnverified(signedToken(t, jwt.MapClaims{"email": "x@y"})); err == nil {
		t.Error("expected error for token without subject")
	}
	if _, err := ParseUnverified("not-a-jwt"); err == nil {
		t.Error("expected error for garbage token")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Load(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}

	want := &TokenFile{Token: "t", UID: "u", Server: "http://x"}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v", info.Mode().Perm())
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Token != "t" || got.UID != "u" {
		t.Errorf("unexpected token file %+v", got)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
}

func TestTokenFileIsExpired(t *testing.T) {
	if (&TokenFile{}).IsExpired(time.Hour) {
		t.Error("zero expiry never expires")
	}
	tf := &TokenFile{ExpiresAt: time.Now().Add(30 * time.Minute)}
	if tf.IsExpired(0) {
		t.Error("should not be expired yet")
	}
	if !tf.IsExpired(time.Hour) {
		t.Error("should be expired within the margin")
	}
}

func TestNewSession_Sources(t *testing.T) {
	ctx := context.Background()

	s, err := NewSession(ctx, Config{Store: tempStore(t)})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, ok := s.CurrentUserID(); ok {
		t.Error("empty store should mean signed out")
	}

	s, err = NewSession(ctx, Config{Store: tempStore(t), UID: "env-user"})
	if err != nil {
		t.Fatal(err)
	}
	if uid, _ := s.UID(); uid != "env-user" {
		t.Errorf("uid = %q", uid)
	}
	if s.Token() != "" {
		t.Errorf("no token expected")
	}

	store := tempStore(t)
	token := signedToken(t, jwt.MapClaims{"user_id": "saved"})
	if err := store.Save(&TokenFile{Token: token, UID: "saved"}); err != nil {
		t.Fatal(err)
	}
	s, err = NewSession(ctx, Config{Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if uid, _ := s.CurrentUserID(); uid != "saved" || s.Token() != token {
		t.Errorf("expected saved identity, got %q", uid)
	}
}

func TestLoginAndSignOut(t *testing.T) {
	ctx := context.Background()
	store := tempStore(t)
	s, err := NewSession(ctx, Config{Store: store})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := s.Login(ctx, signedToken(t, jwt.MapClaims{"sub": "abc", "email": "a@b"}), "", "http://api")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if claims.UserID != "abc" {
		t.Errorf("uid = %q", claims.UserID)
	}
	tf, err := store.Load()
	if err != nil || tf.UID != "abc" || tf.Email != "a@b" {
		t.Fatalf("token file not saved: %+v %v", tf, err)
	}

	if err := s.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, ok := s.CurrentUserID(); ok {
		t.Error("expected signed out")
	}
	if _, err := store.Load(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("token file should be gone, got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	var gotKey, gotToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts:delete" {
			http.NotFound(w, r)
			return
		}
		gotKey = r.URL.Query().Get("key")
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotToken = body["idToken"]
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	ctx := context.Background()
	token := signedToken(t, jwt.MapClaims{"user_id": "u"})
	s, err := NewSession(ctx, Config{
		Store:          tempStore(t),
		Token:          token,
		IdentityURL:    ts.URL,
		IdentityAPIKey: "api-key",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteAccount(ctx); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if gotKey != "api-key" || gotToken != token {
		t.Errorf("unexpected request key=%q token=%q", gotKey, gotToken)
	}
	if _, ok := s.CurrentUserID(); ok {
		t.Error("expected signed out after deletion")
	}
}

func TestDeleteAccount_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"CREDENTIAL_TOO_OLD_LOGIN_AGAIN"}}`))
	}))
	defer ts.Close()

	ctx := context.Background()
	s, err := NewSession(ctx, Config{
		Store:       tempStore(t),
		Token:       signedToken(t, jwt.MapClaims{"user_id": "u"}),
		IdentityURL: ts.URL,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.DeleteAccount(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "delete account failed (400): CREDENTIAL_TOO_OLD_LOGIN_AGAIN"; err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
	if _, ok := s.CurrentUserID(); !ok {
		t.Error("failed deletion must keep the session")
	}
}
