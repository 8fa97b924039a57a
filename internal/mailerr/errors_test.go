package mailerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	transport := &TransportError{Op: "GET /api/threads/t1", StatusCode: 502, Body: "bad gateway"}

	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryNone},
		{"plain", errors.New("boom"), CategoryOther},
		{"context", context.Canceled, CategoryOther},
		{"unauthenticated", &UnauthenticatedError{Message: "session expired"}, CategoryUnauthenticated},
		{"transport", transport, CategoryTransport},
		{"api", &APIError{StatusCode: 404, Message: "mail not found"}, CategoryAPI},
		{"validation", Invalid("page", "must be at least 1"), CategoryValidation},
		{"wrapped", fmt.Errorf("listing: %w", &APIError{Message: "x"}), CategoryAPI},
		{"thread wins over cause", &ThreadUnavailableError{ThreadID: "t1", Err: transport}, CategoryThreadUnavailable},
		{
			"unauthenticated wraps cause",
			&UnauthenticatedError{Message: "session unavailable", Err: &TransportError{Op: "keyring"}},
			CategoryUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestIsHelpersFollowChain(t *testing.T) {
	cause := &TransportError{Op: "GET /api/threads/t1", Err: errors.New("connection refused")}
	err := fmt.Errorf("opening thread: %w", &ThreadUnavailableError{ThreadID: "t1", Err: cause})

	assert.True(t, IsThreadUnavailable(err))
	assert.True(t, IsTransport(err))
	assert.False(t, IsAPI(err))
	assert.False(t, IsUnauthenticated(err))
	assert.False(t, IsValidation(err))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "from_address is not verified",
		(&APIError{Op: "POST /api/send", StatusCode: 400, Message: "from_address is not verified"}).Error())

	assert.Equal(t, "invalid page: must be at least 1, got 0", Invalid("page", "must be at least 1, got %d", 0).Error())
	assert.Equal(t, "invalid request: empty", (&ValidationError{Message: "empty"}).Error())

	assert.Equal(t, "unexpected status 503 on POST /api/mails/sync: unavailable",
		(&TransportError{Op: "POST /api/mails/sync", StatusCode: 503, Body: "unavailable"}).Error())
	assert.Equal(t, "transport error on GET /api/mails: dial tcp: refused",
		(&TransportError{Op: "GET /api/mails", Err: errors.New("dial tcp: refused")}).Error())

	assert.Equal(t, "unauthenticated: session expired", (&UnauthenticatedError{Message: "session expired"}).Error())
	assert.Equal(t, `thread "t9" unavailable: gone`,
		(&ThreadUnavailableError{ThreadID: "t9", Err: errors.New("gone")}).Error())
}
