// Package session supplies bearer credentials for the mail API. A session
// is any oauth2.TokenSource: it yields a short-lived token or fails.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"

	"github.com/nhle/mailroom/internal/model"
)

// tokenKey is the keyring item holding the serialized token.
const tokenKey = "mail-api-token"

// ErrNoSession is returned when no token has been stored.
var ErrNoSession = errors.New("no session: run login first")

// Static returns a source that always yields the given access token.
// A zero expiry never expires.
func Static(accessToken string, expiry time.Time) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      expiry,
	})
}

// OpenKeyring returns the keyring configured for the session store.
func OpenKeyring(cfg model.SessionConfig) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: cfg.KeyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  cfg.KeyringDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.KeyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringSource reads the session token from a keyring. It implements
// oauth2.TokenSource.
type KeyringSource struct {
	ring keyring.Keyring
}

// NewKeyringSource wraps ring as a token source.
func NewKeyringSource(ring keyring.Keyring) *KeyringSource {
	return &KeyringSource{ring: ring}
}

// Token returns the stored token. Expiry is not checked here; the gateway
// rejects invalid tokens before any request is sent.
func (s *KeyringSource) Token() (*oauth2.Token, error) {
	item, err := s.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", tokenKey, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(item.Data, &tok); err != nil {
		return nil, fmt.Errorf("decoding stored token: %w", err)
	}
	return &tok, nil
}

// Save stores tok in the keyring, replacing any previous session.
func (s *KeyringSource) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	err = s.ring.Set(keyring.Item{
		Key:   tokenKey,
		Data:  data,
		Label: "mail API session",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", tokenKey, err)
	}
	return nil
}

// Clear removes the stored session. Clearing an absent session is not
// an error.
func (s *KeyringSource) Clear() error {
	err := s.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", tokenKey, err)
	}
	return nil
}

// Cached wraps src so that a valid token is reused until it expires.
func Cached(src oauth2.TokenSource) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, src)
}
