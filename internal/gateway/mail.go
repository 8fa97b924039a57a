package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
)

// readBody is the request body of PATCH /api/mails/{key}/read.
type readBody struct {
	IsRead bool `json:"is_read"`
}

// starBody is the request body of PATCH /api/mails/{key}/star.
type starBody struct {
	IsStarred bool `json:"is_starred"`
}

// recipientsResponse is the response of GET /api/mails/recipients.
type recipientsResponse struct {
	Recipients []string `json:"recipients"`
}

// ListMail fetches one page of mail. An empty recipient lists all mail.
func (c *Client) ListMail(
	ctx context.Context,
	recipient string,
	page int,
	perPage int,
) (*model.MailPage, error) {
	if page < 1 {
		return nil, mailerr.Invalid("page", "must be at least 1, got %d", page)
	}
	if perPage < 1 {
		return nil, mailerr.Invalid("per_page", "must be at least 1, got %d", perPage)
	}

	query := url.Values{}
	if recipient = strings.TrimSpace(recipient); recipient != "" {
		query.Set("recipient", recipient)
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var result model.MailPage
	if err := c.get(ctx, "/api/mails", query, &result); err != nil {
		return nil, fmt.Errorf("listing mail page %d: %w", page, err)
	}

	if result.PerPage <= 0 {
		result.PerPage = perPage
	}
	if result.Page <= 0 {
		result.Page = page
	}
	result.Recompute()

	return &result, nil
}

// GetMail fetches a single mail record by storage key.
func (c *Client) GetMail(ctx context.Context, key string) (*model.MailRecord, error) {
	escaped, err := escapeKey("s3_key", key)
	if err != nil {
		return nil, err
	}

	var rec model.MailRecord
	if err := c.get(ctx, "/api/mails/"+escaped, nil, &rec); err != nil {
		return nil, fmt.Errorf("getting mail %s: %w", key, err)
	}
	return &rec, nil
}

// SetReadFlag sets the read flag of a mail record on the server.
func (c *Client) SetReadFlag(ctx context.Context, key string, value bool) error {
	escaped, err := escapeKey("s3_key", key)
	if err != nil {
		return err
	}

	path := "/api/mails/" + escaped + "/read"
	if err := c.do(ctx, http.MethodPatch, path, nil, readBody{IsRead: value}, nil); err != nil {
		return fmt.Errorf("setting read=%t on %s: %w", value, key, err)
	}
	return nil
}

// SetStarFlag sets the starred flag of a mail record on the server.
func (c *Client) SetStarFlag(ctx context.Context, key string, value bool) error {
	escaped, err := escapeKey("s3_key", key)
	if err != nil {
		return err
	}

	path := "/api/mails/" + escaped + "/star"
	if err := c.do(ctx, http.MethodPatch, path, nil, starBody{IsStarred: value}, nil); err != nil {
		return fmt.Errorf("setting starred=%t on %s: %w", value, key, err)
	}
	return nil
}

// DeleteMail deletes a mail record on the server.
func (c *Client) DeleteMail(ctx context.Context, key string) error {
	escaped, err := escapeKey("s3_key", key)
	if err != nil {
		return err
	}

	if err := c.do(ctx, http.MethodDelete, "/api/mails/"+escaped, nil, nil, nil); err != nil {
		return fmt.Errorf("deleting mail %s: %w", key, err)
	}
	return nil
}

// TriggerSync asks the server to ingest new mail and reports how many
// records were added.
func (c *Client) TriggerSync(ctx context.Context) (*model.SyncResult, error) {
	var result model.SyncResult
	if err := c.do(ctx, http.MethodPost, "/api/mails/sync", nil, nil, &result); err != nil {
		return nil, fmt.Errorf("triggering sync: %w", err)
	}
	return &result, nil
}

// ListRecipients returns the distinct recipient addresses of the mailbox.
func (c *Client) ListRecipients(ctx context.Context) ([]string, error) {
	var result recipientsResponse
	if err := c.get(ctx, "/api/mails/recipients", nil, &result); err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	return result.Recipients, nil
}

// ListThreads returns the thread groups visible to the user.
func (c *Client) ListThreads(ctx context.Context) ([]model.ThreadGroup, error) {
	var groups []model.ThreadGroup
	if err := c.get(ctx, "/api/threads", nil, &groups); err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return groups, nil
}

// FetchThread returns the raw messages of a thread in transport order.
func (c *Client) FetchThread(ctx context.Context, threadID string) (*model.Thread, error) {
	escaped, err := escapeKey("thread_id", threadID)
	if err != nil {
		return nil, err
	}

	var thread model.Thread
	if err := c.get(ctx, "/api/threads/"+escaped, nil, &thread); err != nil {
		return nil, fmt.Errorf("fetching thread %s: %w", threadID, err)
	}
	return &thread, nil
}

// Send submits an outgoing message.
func (c *Client) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	var result model.SendResult
	if err := c.do(ctx, http.MethodPost, "/api/send", nil, req, &result); err != nil {
		return nil, fmt.Errorf("sending %s mail: %w", req.SendType, err)
	}
	return &result, nil
}
