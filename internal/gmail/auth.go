// Package gmail is the Gmail gateway: OAuth token lifecycle, message
// search and retrieval, reply sending, and draft creation.
package gmail

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
)

// Scopes are the Gmail OAuth scopes the agent needs: read and label
// changes, draft creation, and sending.
var Scopes = []string{
	gmailv1.GmailModifyScope,
	gmailv1.GmailComposeScope,
	gmailv1.GmailSendScope,
}

// ErrTokenNotSet indicates no OAuth token is available yet.
var ErrTokenNotSet = errors.New("no token defined")

// LoadOAuthConfig reads an OAuth "Desktop app" client file and builds
// the oauth2 config with the required scopes. The redirect URL is set
// later by the loopback authorization flow.
func LoadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf(
				"OAuth client file not found at %s; download OAuth 'Desktop app' credentials from Google Cloud and save them there", credentialsPath)
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return cfg, nil
}

// persistedToken is the on-disk token format. Scopes are stored
// alongside the oauth2 token so a scope change forces re-authorization.
type persistedToken struct {
	oauth2.Token
	Scopes []string `json:"scopes,omitempty"`
}

// Token manages the OAuth2 token with thread-safe operations.
type Token struct {
	mu          sync.RWMutex
	cfg         *oauth2.Config
	token       *oauth2.Token
	scopes      []string
	persistPath string
	logger      *slog.Logger
}

// NewToken creates a Token manager, loading from disk if the file
// exists. A missing file is not an error; Authorize creates it.
func NewToken(cfg *oauth2.Config, persistPath string, logger *slog.Logger) (*Token, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Token{
		cfg:         cfg,
		persistPath: persistPath,
		logger:      logger,
	}
	if persistPath == "" {
		return t, nil
	}

	b, err := os.ReadFile(persistPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("no token file yet", "path", persistPath)
			return t, nil
		}
		return nil, fmt.Errorf("read token: %w", err)
	}

	var pt persistedToken
	if err := json.Unmarshal(b, &pt); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	t.token = &pt.Token
	t.scopes = pt.Scopes

	return t, nil
}

// OAuthToken returns the current OAuth2 token.
func (t *Token) OAuthToken() (*oauth2.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.token == nil {
		return nil, ErrTokenNotSet
	}
	return t.token, nil
}

// HasScopes reports whether the stored token was granted every
// required scope. A token persisted without scope metadata fails the
// check and triggers re-authorization.
func (t *Token) HasScopes(required []string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.token == nil {
		return false
	}
	granted := make(map[string]bool, len(t.scopes))
	for _, s := range t.scopes {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}

// Persist saves the token and its scopes to disk.
func (t *Token) Persist() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.persistPath == "" || t.token == nil {
		return nil
	}

	pt := persistedToken{Token: *t.token, Scopes: t.scopes}
	b, err := json.Marshal(pt)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(t.persistPath, b, 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Authorize runs the loopback OAuth flow: starts a localhost listener,
// opens the consent URL in a browser, waits for the redirect, and
// exchanges the code. The resulting token replaces any stored one and
// is persisted immediately.
func (t *Token) Authorize(ctx context.Context) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()

	state, err := randomState()
	if err != nil {
		return err
	}

	// The oauth2 config is shared with the Gmail service; only the
	// redirect URL is flow-local, so work on a copy.
	cfg := *t.cfg
	cfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	ch := make(chan authCallback, 1)
	srv := &http.Server{Handler: redirectHandler(state, ch)}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	t.logger.Info("opening browser for Gmail authorization", "url", authURL)
	openBrowser(authURL, t.logger)

	var cb authCallback
	select {
	case cb = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if cb.err != nil {
		return cb.err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	tok, err := cfg.Exchange(exchangeCtx, cb.code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	t.mu.Lock()
	t.token = tok
	t.scopes = append([]string(nil), t.cfg.Scopes...)
	t.mu.Unlock()

	if err := t.Persist(); err != nil {
		return err
	}
	t.logger.Info("authorization successful", "tokenPath", t.persistPath)
	return nil
}

// authCallback carries the OAuth redirect outcome to the waiting flow.
type authCallback struct {
	code string
	err  error
}

// redirectHandler processes the browser redirect on the loopback
// listener. Requests carrying no OAuth parameters at all (favicon
// fetches and other stray browser traffic) get a 404 and do not touch
// the flow.
func redirectHandler(state string, ch chan<- authCallback) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code") == "" && q.Get("state") == "" && q.Get("error") == "" {
			http.NotFound(w, r)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			ch <- authCallback{err: errors.New("state mismatch in OAuth redirect")}
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			ch <- authCallback{err: fmt.Errorf("authorization denied: %s", errMsg)}
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this tab and return to mailpilot.")
		ch <- authCallback{code: q.Get("code")}
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func openBrowser(url string, logger *slog.Logger) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = errors.New("unsupported platform")
	}
	if err != nil {
		logger.Warn("could not open browser; open the link manually", "error", err, "url", url)
	}
}
