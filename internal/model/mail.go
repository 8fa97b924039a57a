package model

import "time"

// DefaultPerPage is the page size used when none is configured.
const DefaultPerPage = 20

// Attachment holds metadata about a mail attachment. Contents are never
// carried in list responses.
type Attachment struct {
	Filename    string `json:"filename" db:"filename"`
	ContentType string `json:"content_type" db:"content_type"`
	Size        int64  `json:"size" db:"size"`
}

// MailRecord is a single received message as reported by the mail API.
type MailRecord struct {
	// S3Key is the opaque storage key identifying the message. It is
	// stable for the lifetime of the message and used for every
	// single-record operation.
	S3Key string `json:"s3_key" db:"s3_key"`

	// MessageID is the RFC 5322 Message-ID header value.
	MessageID string `json:"message_id" db:"message_id"`

	From     string `json:"from" db:"from_addr"`
	To       string `json:"to" db:"to_addr"`
	Subject  string `json:"subject" db:"subject"`
	Body     string `json:"body" db:"body"`
	HTMLBody string `json:"html_body,omitempty" db:"html_body"`

	Date        time.Time    `json:"date" db:"date"`
	Attachments []Attachment `json:"attachments,omitempty" db:"-"`

	IsRead    bool `json:"is_read" db:"is_read"`
	IsStarred bool `json:"is_starred" db:"is_starred"`

	// ThreadID links the message to a conversation thread, if any.
	ThreadID string `json:"thread_id,omitempty" db:"thread_id"`
}

// MailPage is a bounded window over the mailbox. Mails are kept in
// server order.
type MailPage struct {
	Mails      []MailRecord `json:"mails"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	TotalPages int          `json:"total_pages"`
}

// TotalPagesFor returns ceil(total/perPage), never less than 1.
func TotalPagesFor(total, perPage int) int {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if total <= 0 {
		return 1
	}
	pages := total / perPage
	if total%perPage > 0 {
		pages++
	}
	return pages
}

// Recompute refreshes TotalPages from Total and PerPage.
func (p *MailPage) Recompute() {
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	p.TotalPages = TotalPagesFor(p.Total, p.PerPage)
}

// PageInRange reports whether n is a valid page number for this window.
func (p MailPage) PageInRange(n int) bool {
	return n >= 1 && n <= max(p.TotalPages, 1)
}

// IndexOf returns the position of the record with the given storage key,
// or -1 when it is not on this page.
func (p MailPage) IndexOf(key string) int {
	for i := range p.Mails {
		if p.Mails[i].S3Key == key {
			return i
		}
	}
	return -1
}

// Clone returns a copy whose Mails slice (and attachment slices) can be
// modified without affecting p.
func (p MailPage) Clone() MailPage {
	out := p
	if p.Mails != nil {
		out.Mails = make([]MailRecord, len(p.Mails))
		for i, m := range p.Mails {
			if m.Attachments != nil {
				m.Attachments = append([]Attachment(nil), m.Attachments...)
			}
			out.Mails[i] = m
		}
	}
	return out
}

// SyncResult is the response of a server-side mailbox ingestion.
type SyncResult struct {
	Synced int `json:"synced"`
}
