package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailroom/internal/model"
)

const (
	replyPrefix   = "Re: "
	forwardPrefix = "Fwd: "

	// quoteDateLayout formats the original date in quoted headers.
	quoteDateLayout = "2006-01-02 15:04"
)

// ReplyDraft prepares a reply to rec: addressed to the original sender,
// subject prefixed once with "Re: ", the original quoted below a separator
// and the thread carried over. The from-address is left for the caller.
func ReplyDraft(rec model.MailRecord) model.SendRequest {
	body := fmt.Sprintf("\n\n---\nOn %s, %s wrote:\n%s",
		formatDate(rec.Date), rec.From, rec.Body)

	return model.SendRequest{
		To:       []string{senderAddress(rec.From)},
		Subject:  prefixSubject(replyPrefix, rec.Subject),
		Body:     body,
		ThreadID: rec.ThreadID,
		SendType: model.SendReply,
	}
}

// ForwardDraft prepares a forward of rec with no recipients. The original
// headers and body are quoted below a separator.
func ForwardDraft(rec model.MailRecord) model.SendRequest {
	var b strings.Builder
	b.WriteString("\n\n---\nForwarded message:\n")
	fmt.Fprintf(&b, "From: %s\n", rec.From)
	fmt.Fprintf(&b, "Date: %s\n", formatDate(rec.Date))
	fmt.Fprintf(&b, "Subject: %s\n\n", rec.Subject)
	b.WriteString(rec.Body)

	return model.SendRequest{
		Subject:  prefixSubject(forwardPrefix, rec.Subject),
		Body:     b.String(),
		ThreadID: rec.ThreadID,
		SendType: model.SendForward,
	}
}

// prefixSubject adds prefix unless subject already starts with it,
// ignoring case.
func prefixSubject(prefix, subject string) string {
	subject = strings.TrimSpace(subject)
	if len(subject) >= len(prefix) && strings.EqualFold(subject[:len(prefix)], prefix) {
		return subject
	}
	return prefix + subject
}

// senderAddress reduces a From header to its bare address. Unparseable
// values are returned as they are.
func senderAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "an unknown date"
	}
	return t.Local().Format(quoteDateLayout)
}
