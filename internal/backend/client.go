package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xelth-com/eckpos/internal/session"
)

const defaultTimeout = 10 * time.Second

// Response is a backend answer, or a synthetic one produced by the offline path
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Queued is set on the acknowledgment returned for a deferred write.
	Queued bool
	// FromCache is set when the body was built from the local replica.
	FromCache bool
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// Client talks to the REST backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessions   session.Provider
}

// New creates a backend client. sessions may be nil for unauthenticated use.
func New(baseURL string, timeout time.Duration, sessions session.Provider) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		sessions:   sessions,
	}
}

// BaseURL returns the backend root, without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// newAuthenticatedRequest builds a JSON request with the session's bearer token
func (c *Client) newAuthenticatedRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	if c.sessions != nil {
		if s, ok := c.sessions.Current(); ok {
			if s.Expired(time.Now()) {
				// The backend would answer 401 anyway; let it, without leaking a dead token
				log.Warn().Time("expired_at", s.ExpiresAt).Str("path", path).Msg("⚠️ Session expired, sending request without credential")
			} else {
				req.Header.Set("Authorization", s.Header())
			}
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// EncodeBody turns a request body into JSON bytes. Raw JSON passes through.
func EncodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

// Do sends one request. path is relative to the base URL and may carry a query.
// Error statuses come back as *RejectedError, missing responses as *ConnectivityError.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}, header http.Header) (*Response, error) {
	payload, err := EncodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: encode body: %w", method, path, err)
	}

	req, err := c.newAuthenticatedRequest(ctx, method, path, payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		return nil, &ConnectivityError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectivityError{Method: method, Path: path, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &RejectedError{Method: method, Path: path, Status: resp.StatusCode, Body: data}
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}
