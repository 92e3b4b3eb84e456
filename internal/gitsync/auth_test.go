package gitsync

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/conveyorhq/conveyor/internal/config"
)

func TestAuthenticatorNilRef(t *testing.T) {
	method, err := NewAuthenticator(nil).Method(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if method != nil {
		t.Fatalf("expected anonymous access, got %v", method)
	}
}

func TestTokenAuthSetsBearerHeader(t *testing.T) {
	secret := &config.Secret{Name: "github", Value: map[string]any{
		"type":  "token_auth",
		"token": "sesame",
	}}

	method, err := NewAuthenticator(nil).Method(context.Background(), secret.Ref())
	if err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest("GET", "https://example.com/org/repo.git", nil)
	if err != nil {
		t.Fatal(err)
	}
	method.(*tokenAuth).SetAuth(req)
	if got := req.Header.Get("Authorization"); got != "Bearer sesame" {
		t.Fatalf("unexpected authorization header %q", got)
	}
	if s := method.(*tokenAuth).String(); strings.Contains(s, "sesame") {
		t.Fatalf("token leaked into String(): %q", s)
	}
}

func TestBasicAuthSetsExtraHeaders(t *testing.T) {
	secret := &config.Secret{Name: "proxy", Value: map[string]any{
		"type":     "basic_auth",
		"username": "u",
		"password": "p",
		"headers":  []any{"X-Team: infra", "malformed"},
	}}

	method, err := NewAuthenticator(nil).Method(context.Background(), secret.Ref())
	if err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest("GET", "https://example.com/org/repo.git", nil)
	if err != nil {
		t.Fatal(err)
	}
	method.(*basicAuth).SetAuth(req)

	user, pass, ok := req.BasicAuth()
	if !ok || user != "u" || pass != "p" {
		t.Fatalf("unexpected basic auth %q:%q (%v)", user, pass, ok)
	}
	if got := req.Header.Get("X-Team"); got != "infra" {
		t.Fatalf("extra header not set, got %q", got)
	}
	if s := method.(*basicAuth).String(); !strings.Contains(s, "*******") {
		t.Fatalf("password not masked in String(): %q", s)
	}
}

type staticProvider map[string]map[string]any

func (p staticProvider) GetSecret(_ context.Context, name string) (map[string]any, error) {
	return p[name], nil
}

func TestAuthenticatorPrefersProvider(t *testing.T) {
	// The reference resolves to a stale inline secret; the external provider
	// must win.
	secret := &config.Secret{Name: "github", Value: map[string]any{
		"type":  "token_auth",
		"token": "stale",
	}}
	provider := staticProvider{"github": {"type": "token_auth", "token": "fresh"}}

	method, err := NewAuthenticator(provider).Method(context.Background(), secret.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if method.(*tokenAuth).token != "fresh" {
		t.Fatalf("expected provider token, got %q", method.(*tokenAuth).token)
	}
}

func TestSSHAuthInvalidKey(t *testing.T) {
	if _, err := newSSHAuth("not a key", "", nil); err == nil {
		t.Fatal("expected parse error for invalid key material")
	}
}

func TestCheckFingerprints(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	hostKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}

	known := newCheckFingerprints([]string{ssh.FingerprintSHA256(hostKey)})
	if err := known("github.com", nil, hostKey); err != nil {
		t.Fatalf("known fingerprint rejected: %v", err)
	}

	unknown := newCheckFingerprints([]string{"SHA256:bogus"})
	if err := unknown("github.com", nil, hostKey); err == nil {
		t.Fatal("expected unknown fingerprint to be rejected")
	}
}
