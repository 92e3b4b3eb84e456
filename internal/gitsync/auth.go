package gitsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	gohttp "net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/ssh"

	"github.com/conveyorhq/conveyor/internal/config"
	pkgsync "github.com/conveyorhq/conveyor/pkg/sync"
)

const tokenCacheSize = 64

// Authenticator builds go-git transport auth methods from credential
// references. Resolved tokens live only in memory for the duration of one
// fetch or push call; they are never embedded into remote URLs and never
// persisted.
type Authenticator struct {
	provider pkgsync.SecretProvider
	tokens   *lru.Cache // credential name -> appToken
}

type appToken struct {
	token   string
	expires time.Time
}

func NewAuthenticator(provider pkgsync.SecretProvider) *Authenticator {
	cache, _ := lru.New(tokenCacheSize)
	return &Authenticator{provider: provider, tokens: cache}
}

// Method resolves the credential reference to a transport auth method. A nil
// reference means the remote must be reachable anonymously.
func (a *Authenticator) Method(ctx context.Context, ref *config.SecretRef) (transport.AuthMethod, error) {
	if ref == nil {
		return nil, nil
	}

	var typed any

	if a.provider != nil {
		credMap, err := a.provider.GetSecret(ctx, ref.Name)
		if err != nil {
			return nil, err
		}
		secret := &config.Secret{Name: ref.Name, Value: credMap}
		typed, err = secret.Typed(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		typed, err = ref.Resolve(ctx)
		if err != nil {
			return nil, err
		}
	}

	return a.fromTyped(ctx, ref.Name, typed)
}

func (a *Authenticator) fromTyped(ctx context.Context, name string, value any) (transport.AuthMethod, error) {
	switch value := value.(type) {
	case config.SecretBasicAuth:
		return &basicAuth{
			Username: value.Username,
			Password: value.Password,
			Headers:  value.Headers,
		}, nil

	case config.SecretGitHubApp:
		token, err := a.installationToken(ctx, name, value)
		if err != nil {
			return nil, err
		}
		return &http.BasicAuth{Username: "x-access-token", Password: token}, nil

	case config.SecretSSHKey:
		return newSSHAuth(value.Key, value.Passphrase, value.Fingerprints)

	case config.SecretTokenAuth:
		return &tokenAuth{token: value.Token}, nil

	default:
		return nil, fmt.Errorf("unsupported authentication type for git: %T", value)
	}
}

// installationToken mints a short-lived GitHub App installation token,
// keeping minted tokens in a bounded cache keyed by credential name. Tokens
// are refreshed a minute before GitHub expires them.
func (a *Authenticator) installationToken(ctx context.Context, name string, app config.SecretGitHubApp) (string, error) {
	if cached, ok := a.tokens.Get(name); ok {
		t := cached.(appToken)
		if time.Now().Before(t.expires) {
			return t.token, nil
		}
	}

	tr, err := ghinstallation.New(gohttp.DefaultTransport, app.IntegrationID, app.InstallationID, []byte(app.PrivateKey))
	if err != nil {
		return "", err
	}

	token, err := tr.Token(ctx)
	if err != nil {
		return "", err
	}

	// Installation tokens live for an hour; refresh well before that.
	a.tokens.Add(name, appToken{token: token, expires: time.Now().Add(50 * time.Minute)})

	return token, nil
}

func newSSHAuth(key string, passphrase string, fingerprints []string) (gitssh.AuthMethod, error) {
	var signer ssh.Signer
	var err error
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
		if err != nil {
			return nil, err
		}
	} else {
		signer, err = ssh.ParsePrivateKey([]byte(key))
		if err != nil {
			return nil, err
		}
	}

	if len(fingerprints) == 0 {
		return nil, errors.New("ssh: at least one fingerprint is required when using ssh_key authentication")
	}

	return &gitssh.PublicKeys{
		User:   "git",
		Signer: signer,
		HostKeyCallbackHelper: gitssh.HostKeyCallbackHelper{
			HostKeyCallback: newCheckFingerprints(fingerprints),
		},
	}, nil
}

func newCheckFingerprints(fingerprints []string) ssh.HostKeyCallback {
	m := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		m[fp] = true
	}

	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		fingerprint := ssh.FingerprintSHA256(key)
		if _, ok := m[fingerprint]; !ok {
			return fmt.Errorf("ssh: unknown fingerprint (%s) for %s", fingerprint, hostname)
		}
		return nil
	}
}

// basicAuth provides HTTP basic authentication but in addition can set
// extra headers required for authentication.
type basicAuth struct {
	Username string
	Password string
	Headers  []string
}

func (a *basicAuth) String() string {
	masked := "*******"
	if a.Password == "" {
		masked = "<empty>"
	}
	return fmt.Sprintf("%s - %s:%s [%s]", a.Name(), a.Username, masked, strings.Join(a.Headers, ", "))
}

func (*basicAuth) Name() string {
	return "http-basic-auth-extra"
}

func (a *basicAuth) SetAuth(r *gohttp.Request) {
	r.SetBasicAuth(a.Username, a.Password)
	for _, header := range a.Headers {
		name, value, found := strings.Cut(header, ":")
		if found {
			r.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
}

// tokenAuth provides HTTP bearer token authentication.
type tokenAuth struct {
	token string
}

func (a *tokenAuth) String() string {
	return a.Name() + " - *******"
}

func (*tokenAuth) Name() string {
	return "http-bearer-token"
}

func (a *tokenAuth) SetAuth(r *gohttp.Request) {
	r.Header.Set("Authorization", "Bearer "+a.token)
}
