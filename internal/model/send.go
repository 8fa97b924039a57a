package model

// SendType selects how the mail API threads an outgoing message.
type SendType string

const (
	SendNew     SendType = "new"
	SendReply   SendType = "reply"
	SendForward SendType = "forward"
)

// SendRequest is the body of POST /api/send.
type SendRequest struct {
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	HTMLBody string   `json:"html_body,omitempty"`

	// ThreadID is required for replies and forwards.
	ThreadID string `json:"thread_id,omitempty"`

	// ReplyCode reuses an existing management code for a reply.
	ReplyCode string `json:"reply_code,omitempty"`

	SendType    SendType `json:"send_type"`
	FromAddress string   `json:"from_address,omitempty"`
}

// SendResult is the response of POST /api/send.
type SendResult struct {
	ThreadID        string   `json:"thread_id"`
	ManagementCodes []string `json:"management_codes"`
}
