// Package compose validates and submits outgoing mail and builds reply and
// forward drafts from received records.
package compose

import (
	"context"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/nhle/mailroom/internal/logging"
	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
)

// Gateway submits outgoing mail.
type Gateway interface {
	Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error)
}

// Sender is stateless with respect to the mailbox: a successful send does
// not touch any loaded page or thread view. Callers reload or sync to see
// the sent message.
type Sender struct {
	gw  Gateway
	log zerolog.Logger
}

// NewSender creates a sender.
func NewSender(gw Gateway, logger zerolog.Logger) *Sender {
	return &Sender{
		gw:  gw,
		log: logger.With().Str("component", "compose").Logger(),
	}
}

// Send validates req and submits it. Validation failures are returned
// before any request is made.
func (s *Sender) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	normalized, err := Validate(req)
	if err != nil {
		return nil, err
	}

	result, err := s.gw.Send(ctx, normalized)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("send_type", string(normalized.SendType)).
		Strs("to", logging.MaskAll(normalized.To)).
		Str("thread_id", result.ThreadID).
		Msg("mail sent")

	return result, nil
}

// Validate checks the client-side preconditions of a send and returns the
// request with recipients and from-address in canonical form.
//
// At least one recipient and a from-address are required. The send type
// defaults to new; replies and forwards must name a thread.
func Validate(req model.SendRequest) (model.SendRequest, error) {
	out := req

	to, err := ParseRecipients(req.To)
	if err != nil {
		return out, err
	}
	if len(to) == 0 {
		return out, mailerr.Invalid("to", "at least one recipient is required")
	}
	out.To = to

	from := strings.TrimSpace(req.FromAddress)
	if from == "" {
		return out, mailerr.Invalid("from_address", "is required")
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return out, mailerr.Invalid("from_address", "%q is not a valid address: %v", from, err)
	}
	out.FromAddress = addr.Address

	switch out.SendType {
	case "":
		out.SendType = model.SendNew
	case model.SendNew:
	case model.SendReply, model.SendForward:
		if strings.TrimSpace(out.ThreadID) == "" {
			return out, mailerr.Invalid("thread_id", "is required for %s", out.SendType)
		}
	default:
		return out, mailerr.Invalid("send_type", "unknown send type %q", out.SendType)
	}

	return out, nil
}

// ParseRecipients splits and validates recipient entries. Each entry may
// itself be a comma-separated list and may use display-name form; only
// the bare addresses are returned. Blank entries are skipped.
func ParseRecipients(entries []string) ([]string, error) {
	var out []string
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		list, err := mail.ParseAddressList(entry)
		if err != nil {
			return nil, mailerr.Invalid("to", "%q is not a valid address list: %v", entry, err)
		}
		for _, a := range list {
			out = append(out, a.Address)
		}
	}
	return out, nil
}
