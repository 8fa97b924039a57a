// Package gateway is the typed HTTP boundary to the remote mail API. It is
// the only package in the client that performs network I/O.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/nhle/mailroom/internal/mailerr"
)

// defaultTimeout applies when no HTTP client is supplied.
const defaultTimeout = 30 * time.Second

// errorBody is the error payload returned by the mail API.
type errorBody struct {
	Error string `json:"error"`
}

// Client is a thin HTTP client for the mail API. It attaches the session
// bearer token to every request and maps failures onto the mailerr
// categories. It never retries; callers decide.
type Client struct {
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a mail API client. baseURL is the API root (e.g.,
// http://localhost:8080). A nil httpClient gets a 30s timeout default.
func NewClient(
	baseURL string,
	tokens oauth2.TokenSource,
	httpClient *http.Client,
	logger zerolog.Logger,
) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		log:        logger.With().Str("component", "gateway").Logger(),
	}
}

// token returns a valid bearer token or an UnauthenticatedError. It runs
// before any request is built.
func (c *Client) token() (string, error) {
	if c.tokens == nil {
		return "", &mailerr.UnauthenticatedError{Message: "no session provider"}
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return "", &mailerr.UnauthenticatedError{Message: "session unavailable", Err: err}
	}
	if !tok.Valid() {
		return "", &mailerr.UnauthenticatedError{Message: "session expired"}
	}
	return tok.AccessToken, nil
}

// get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) get(
	ctx context.Context,
	path string,
	query url.Values,
	result interface{},
) error {
	return c.do(ctx, http.MethodGet, path, query, nil, result)
}

// do is the core HTTP method that builds the request, handles auth, and
// JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body interface{},
	result interface{},
) error {
	op := method + " " + path

	token, err := c.token()
	if err != nil {
		return err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := c.log.With().Str("op", op).Str("request_id", requestID).Logger()
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("request failed")
		return &mailerr.TransportError{Op: op, Err: err}
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return &mailerr.TransportError{Op: op, StatusCode: resp.StatusCode, Err: readErr}
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, respBody)
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return &mailerr.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unmarshaling response: %w", err),
		}
	}

	return nil
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(op string, status int, body []byte) error {
	var apiErr errorBody
	parsed := json.Unmarshal(body, &apiErr) == nil && apiErr.Error != ""

	if status == http.StatusUnauthorized {
		msg := "credential rejected (401)"
		if parsed {
			msg = apiErr.Error
		}
		return &mailerr.UnauthenticatedError{Message: msg}
	}

	if parsed {
		return &mailerr.APIError{Op: op, StatusCode: status, Message: apiErr.Error}
	}

	return &mailerr.TransportError{
		Op:         op,
		StatusCode: status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// escapeKey escapes a storage key or id for use as a single path segment.
func escapeKey(field, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", mailerr.Invalid(field, "must not be empty")
	}
	return url.PathEscape(key), nil
}
