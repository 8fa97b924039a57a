package compose

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
)

type stubGateway struct {
	sent []model.SendRequest
	err  error
}

func (g *stubGateway) Send(_ context.Context, req model.SendRequest) (*model.SendResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.sent = append(g.sent, req)
	return &model.SendResult{ThreadID: "th-new", ManagementCodes: []string{"c1"}}, nil
}

func TestSend_ValidationFailsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name  string
		req   model.SendRequest
		field string
	}{
		{
			name:  "no recipients",
			req:   model.SendRequest{FromAddress: "me@example.com", Subject: "hi"},
			field: "to",
		},
		{
			name:  "blank recipients",
			req:   model.SendRequest{To: []string{" ", ""}, FromAddress: "me@example.com"},
			field: "to",
		},
		{
			name:  "malformed recipient",
			req:   model.SendRequest{To: []string{"not an address"}, FromAddress: "me@example.com"},
			field: "to",
		},
		{
			name:  "missing from",
			req:   model.SendRequest{To: []string{"you@example.com"}},
			field: "from_address",
		},
		{
			name:  "malformed from",
			req:   model.SendRequest{To: []string{"you@example.com"}, FromAddress: "me at example"},
			field: "from_address",
		},
		{
			name: "reply without thread",
			req: model.SendRequest{
				To: []string{"you@example.com"}, FromAddress: "me@example.com", SendType: model.SendReply,
			},
			field: "thread_id",
		},
		{
			name: "forward without thread",
			req: model.SendRequest{
				To: []string{"you@example.com"}, FromAddress: "me@example.com", SendType: model.SendForward,
			},
			field: "thread_id",
		},
		{
			name: "unknown send type",
			req: model.SendRequest{
				To: []string{"you@example.com"}, FromAddress: "me@example.com", SendType: "broadcast",
			},
			field: "send_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{}
			s := NewSender(gw, zerolog.Nop())

			_, err := s.Send(context.Background(), tt.req)
			require.Error(t, err)

			var ve *mailerr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, gw.sent, "no request may be sent")
		})
	}
}

func TestSend_NormalizesRecipientsAndDefaultsType(t *testing.T) {
	gw := &stubGateway{}
	s := NewSender(gw, zerolog.Nop())

	result, err := s.Send(context.Background(), model.SendRequest{
		To:          []string{"Alice <alice@example.com>, bob@example.com", "carol@example.com"},
		FromAddress: "Me <me@example.com>",
		Subject:     "hello",
		Body:        "body",
	})
	require.NoError(t, err)
	assert.Equal(t, "th-new", result.ThreadID)

	require.Len(t, gw.sent, 1)
	sent := gw.sent[0]
	assert.Equal(t, []string{"alice@example.com", "bob@example.com", "carol@example.com"}, sent.To)
	assert.Equal(t, "me@example.com", sent.FromAddress)
	assert.Equal(t, model.SendNew, sent.SendType)
	assert.Equal(t, "hello", sent.Subject)
}

func TestSend_ReplyWithThreadIsAccepted(t *testing.T) {
	gw := &stubGateway{}
	s := NewSender(gw, zerolog.Nop())

	_, err := s.Send(context.Background(), model.SendRequest{
		To:          []string{"you@example.com"},
		FromAddress: "me@example.com",
		ThreadID:    "th-1",
		ReplyCode:   "abc123",
		SendType:    model.SendReply,
	})
	require.NoError(t, err)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, "abc123", gw.sent[0].ReplyCode)
}

func TestSend_ServerErrorReturnedVerbatim(t *testing.T) {
	gw := &stubGateway{err: &mailerr.APIError{StatusCode: 400, Message: "from_address is not verified"}}
	s := NewSender(gw, zerolog.Nop())

	_, err := s.Send(context.Background(), model.SendRequest{
		To: []string{"you@example.com"}, FromAddress: "me@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, "from_address is not verified", err.Error())
}

func TestReplyDraft(t *testing.T) {
	rec := model.MailRecord{
		S3Key:    "k1",
		From:     "Alice <alice@example.com>",
		To:       "me@example.com",
		Subject:  "Lunch",
		Body:     "Are you free?",
		Date:     time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		ThreadID: "th-9",
	}

	d := ReplyDraft(rec)
	assert.Equal(t, []string{"alice@example.com"}, d.To)
	assert.Equal(t, "Re: Lunch", d.Subject)
	assert.Equal(t, "th-9", d.ThreadID)
	assert.Equal(t, model.SendReply, d.SendType)
	assert.True(t, strings.HasPrefix(d.Body, "\n\n---\n"))
	assert.Contains(t, d.Body, "Alice <alice@example.com> wrote:")
	assert.True(t, strings.HasSuffix(d.Body, "Are you free?"))

	rec.Subject = "RE: Lunch"
	assert.Equal(t, "RE: Lunch", ReplyDraft(rec).Subject, "prefix must not be doubled")
}

func TestForwardDraft(t *testing.T) {
	rec := model.MailRecord{
		From:     "alice@example.com",
		Subject:  "Report",
		Body:     "See attached.",
		ThreadID: "th-4",
	}

	d := ForwardDraft(rec)
	assert.Empty(t, d.To)
	assert.Equal(t, "Fwd: Report", d.Subject)
	assert.Equal(t, model.SendForward, d.SendType)
	assert.Equal(t, "th-4", d.ThreadID)
	assert.Contains(t, d.Body, "From: alice@example.com\n")
	assert.Contains(t, d.Body, "Subject: Report\n")
	assert.Contains(t, d.Body, "Date: an unknown date\n")
	assert.True(t, strings.HasSuffix(d.Body, "See attached."))

	rec.Subject = "Fwd: Report"
	assert.Equal(t, "Fwd: Report", ForwardDraft(rec).Subject)
}

func TestDrafts_PassValidationOnceCompleted(t *testing.T) {
	rec := model.MailRecord{From: "alice@example.com", Subject: "Hi", ThreadID: "th-1"}

	reply := ReplyDraft(rec)
	reply.FromAddress = "me@example.com"
	_, err := Validate(reply)
	require.NoError(t, err)

	fwd := ForwardDraft(rec)
	fwd.FromAddress = "me@example.com"
	_, err = Validate(fwd)
	require.Error(t, err, "forward has no recipients yet")

	fwd.To = []string{"bob@example.com"}
	_, err = Validate(fwd)
	require.NoError(t, err)
}

func TestReplyDraft_WithoutThreadFailsValidation(t *testing.T) {
	d := ReplyDraft(model.MailRecord{From: "alice@example.com", Subject: "Hi"})
	d.FromAddress = "me@example.com"

	_, err := Validate(d)
	require.Error(t, err)
	assert.True(t, mailerr.IsValidation(err))
}
