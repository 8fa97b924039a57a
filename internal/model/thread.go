package model

import "time"

// MessageType is the direction of a thread message relative to the user.
type MessageType string

const (
	MessageSent     MessageType = "sent"
	MessageReceived MessageType = "received"
)

// ThreadMessage is one entry of a conversation. Entries are identified by
// their position in the thread and are immutable once loaded; flag changes
// for received copies go through the mailbox store using S3Key.
type ThreadMessage struct {
	Type    MessageType `json:"type"`
	Subject string      `json:"subject"`
	From    string      `json:"from"`
	To      string      `json:"to"`
	Body    string      `json:"body"`
	Date    time.Time   `json:"date"`

	// S3Key is set for received copies stored in the mailbox.
	S3Key string `json:"s3_key,omitempty"`

	// ManagementCode is the reply-tracking code embedded in sent mail.
	ManagementCode string `json:"management_code,omitempty"`

	IsRead    *bool `json:"is_read,omitempty"`
	IsStarred *bool `json:"is_starred,omitempty"`
}

// Counterpart returns the other party of the message: the recipient for
// sent mail and the sender for received mail.
func (m ThreadMessage) Counterpart() string {
	if m.Type == MessageSent {
		return m.To
	}
	return m.From
}

// Clone returns a copy of m that shares no flag pointers with it.
func (m ThreadMessage) Clone() ThreadMessage {
	if m.IsRead != nil {
		v := *m.IsRead
		m.IsRead = &v
	}
	if m.IsStarred != nil {
		v := *m.IsStarred
		m.IsStarred = &v
	}
	return m
}

// Thread is a conversation ordered ascending by date.
type Thread struct {
	ThreadID  string          `json:"thread_id"`
	GroupName string          `json:"group_name"`
	Messages  []ThreadMessage `json:"messages"`
}

// LastReceived returns the most recent received message, if any.
func (t Thread) LastReceived() (ThreadMessage, bool) {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Type == MessageReceived {
			return t.Messages[i], true
		}
	}
	return ThreadMessage{}, false
}

// ThreadGroup is a thread listing entry.
type ThreadGroup struct {
	ParentUUID string `json:"parent_uuid"`
	GroupName  string `json:"group_name"`
}
