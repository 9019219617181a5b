// File: internal/api/client.go
package api

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

	"github.com/carelinkhq/carelink/internal/domain"
)

// Client calls the platform REST API. Every successful response is a
// {"data": ...} envelope; failures carry an {"error": "..."} body.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken attaches the session token to subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

type Credentials struct {
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	DisplayName string      `json:"display_name,omitempty"`
	Role        domain.Role `json:"role,omitempty"`
}

type SessionInfo struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// SignUp registers an account and returns a signed-in session.
func (c *Client) SignUp(ctx context.Context, creds Credentials) (*SessionInfo, error) {
	var out SessionInfo
	if err := c.do(ctx, "sign_up", http.MethodPost, "/api/auth/signup", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignIn authenticates and returns the session token plus profile.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (*SessionInfo, error) {
	var out SessionInfo
	if err := c.do(ctx, "sign_in", http.MethodPost, "/api/auth/signin", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListThreads fetches all threads for the signed-in user.
func (c *Client) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	var out []domain.Thread
	if err := c.do(ctx, "list_threads", http.MethodGet, "/api/threads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindThreadByParticipants looks up an existing thread with the identical
// participant set and scope. found=false with a nil error is a clean miss.
func (c *Client) FindThreadByParticipants(ctx context.Context, sortedIDs []string, threadType domain.ThreadType, clientID string) (domain.Thread, bool, error) {
	q := url.Values{}
	q.Set("participants", strings.Join(sortedIDs, ","))
	q.Set("type", string(threadType))
	if clientID != "" {
		q.Set("client_id", clientID)
	}

	var out domain.Thread
	err := c.do(ctx, "find_thread", http.MethodGet, "/api/threads/lookup?"+q.Encode(), nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return domain.Thread{}, false, nil
		}
		return domain.Thread{}, false, err
	}
	return out, true, nil
}

type CreateThreadRequest struct {
	Type           domain.ThreadType `json:"type"`
	ClientID       string            `json:"client_id,omitempty"`
	DisplayName    string            `json:"display_name,omitempty"`
	ParticipantIDs []string          `json:"participant_ids"`
}

// CreateThread persists a new thread and returns the authoritative record.
func (c *Client) CreateThread(ctx context.Context, req CreateThreadRequest) (domain.Thread, error) {
	var out domain.Thread
	if err := c.do(ctx, "create_thread", http.MethodPost, "/api/threads", req, &out); err != nil {
		return domain.Thread{}, err
	}
	return out, nil
}

// ListMessages fetches a thread's messages in ascending created-at order.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	var out []domain.Message
	path := fmt.Sprintf("/api/threads/%s/messages", url.PathEscape(threadID))
	if err := c.do(ctx, "list_messages", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type SendMessageRequest struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SendMessage posts a message and returns the server record.
func (c *Client) SendMessage(ctx context.Context, threadID string, req SendMessageRequest) (domain.Message, error) {
	var out domain.Message
	path := fmt.Sprintf("/api/threads/%s/messages", url.PathEscape(threadID))
	if err := c.do(ctx, "send_message", http.MethodPost, path, req, &out); err != nil {
		return domain.Message{}, err
	}
	return out, nil
}

// MarkThreadRead records the signed-in user as having read every message in
// the thread. The server fans out the resulting read receipts.
func (c *Client) MarkThreadRead(ctx context.Context, threadID string) error {
	path := fmt.Sprintf("/api/threads/%s/read", url.PathEscape(threadID))
	return c.do(ctx, "mark_read", http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &Error{Type: ErrTypeValidation, Operation: operation, Message: "invalid payload", Cause: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Type: ErrTypeNetwork, Operation: operation, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Type: ErrTypeNetwork, Operation: operation, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleFailure(operation, resp)
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &Error{Type: ErrTypeServer, Operation: operation, Message: "malformed response envelope", Cause: err}
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &Error{Type: ErrTypeServer, Operation: operation, Message: "malformed response data", Cause: err}
	}
	return nil
}

func (c *Client) handleFailure(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(raw))

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
	}

	errType := ErrTypeServer
	switch {
	case resp.StatusCode == http.StatusNotFound:
		errType = ErrTypeNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		errType = ErrTypeAuth
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		errType = ErrTypeValidation
	}

	return &Error{Type: errType, Operation: operation, Code: resp.StatusCode, Message: msg}
}
