package session

import (
	"errors"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestKeyringSource_NoSession(t *testing.T) {
	src := NewKeyringSource(keyring.NewArrayKeyring(nil))

	_, err := src.Token()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestKeyringSource_SaveTokenClear(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	src := NewKeyringSource(ring)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, src.Save(&oauth2.Token{AccessToken: "abc", TokenType: "Bearer", Expiry: expiry}))

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.True(t, tok.Expiry.Equal(expiry))
	assert.True(t, tok.Valid())

	require.NoError(t, src.Save(&oauth2.Token{AccessToken: "def"}))
	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "def", tok.AccessToken, "save replaces the previous session")

	require.NoError(t, src.Clear())
	_, err = src.Token()
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, src.Clear(), "clearing twice is fine")
}

func TestKeyringSource_CorruptItem(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: tokenKey, Data: []byte("not json")}})

	_, err := NewKeyringSource(ring).Token()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSession))
}

func TestStatic(t *testing.T) {
	tok, err := Static("t1", time.Time{}).Token()
	require.NoError(t, err)
	assert.True(t, tok.Valid())
	assert.Equal(t, "t1", tok.AccessToken)

	tok, err = Static("t2", time.Now().Add(-time.Minute)).Token()
	require.NoError(t, err)
	assert.False(t, tok.Valid())
}

type countingSource struct {
	calls int
	tok   *oauth2.Token
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	s.calls++
	return s.tok, nil
}

func TestCached_ReusesValidToken(t *testing.T) {
	src := &countingSource{tok: &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(time.Hour)}}
	cached := Cached(src)

	for i := 0; i < 3; i++ {
		tok, err := cached.Token()
		require.NoError(t, err)
		assert.Equal(t, "x", tok.AccessToken)
	}
	assert.Equal(t, 1, src.calls)
}

func TestCached_RefetchesExpiredToken(t *testing.T) {
	src := &countingSource{tok: &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(-time.Hour)}}
	cached := Cached(src)

	_, _ = cached.Token()
	_, _ = cached.Token()
	assert.Equal(t, 2, src.calls)
}
