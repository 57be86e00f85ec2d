// Package client talks to the agent backend over HTTP. It implements the
// exchange, history, upload and token collaborators of the session engine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/z-tavern/chatengine/internal/auth"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
)

const (
	// DefaultTimeout bounds a single request when the caller's context has none.
	DefaultTimeout = 30 * time.Second

	maxResponseSize = 10 << 20
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// Gated reports whether the response is a quota or rate-limit refusal.
func (e *APIError) Gated() bool {
	return e.Status == http.StatusTooManyRequests ||
		e.Code == chat.CodeRateLimited ||
		e.Code == chat.CodeQuotaExceeded
}

// Is matches chat.ErrRateLimited for gated responses.
func (e *APIError) Is(target error) bool {
	return target == chat.ErrRateLimited && e.Gated()
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client for the backend at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// SetToken stores the member session token; empty signs out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Authenticated reports whether a member token is held.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SignIn requests a development token for userID and keeps it.
func (c *Client) SignIn(ctx context.Context, userID string) (*auth.TokenResponse, error) {
	var out auth.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", auth.TokenRequest{UserID: userID}, false, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Exchange sends one message to the member or public endpoint.
func (c *Client) Exchange(ctx context.Context, req chat.ExchangeRequest, authenticated bool) (*chat.ExchangeResponse, error) {
	path := "/api/public/chat/" + url.PathEscape(req.AgentID) + "/messages"
	if authenticated {
		path = "/api/chat/" + url.PathEscape(req.AgentID) + "/messages"
	}

	var out chat.ExchangeResponse
	if err := c.doJSON(ctx, http.MethodPost, path, req, authenticated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchHistory retrieves the page preceding the query position.
func (c *Client) FetchHistory(ctx context.Context, q chat.HistoryQuery) (*chat.Page, error) {
	if q.ConversationID == "" {
		return nil, errors.New("conversation id is required")
	}

	params := url.Values{}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.Before != "" {
		params.Set("before", q.Before)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/conversations/" + url.PathEscape(q.ConversationID) + "/messages"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out chat.HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, c.Authenticated(), &out); err != nil {
		return nil, err
	}
	page := out.Page(time.Now())
	return &page, nil
}

// Upload stores a voice artifact and returns its URL.
func (c *Client) Upload(ctx context.Context, artifact *speech.Artifact) (string, error) {
	if artifact.Size() == 0 {
		return "", errors.New("artifact is empty")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, artifact.Filename()))
	header.Set("Content-Type", artifact.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/media", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out speech.UploadResult
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("upload response carried no url")
	}
	return out.URL, nil
}

// Download fetches a media attachment.
func (c *Client) Download(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", decodeError(resp.StatusCode, body)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// Personas lists the characters offered by the backend.
func (c *Client) Personas(ctx context.Context) ([]persona.Persona, error) {
	var out []persona.Persona
	if err := c.doJSON(ctx, http.MethodGet, "/api/personas", nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, authenticated bool, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authenticated {
		if token := c.bearer(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", maxResponseSize)
	}
	return body, nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	var envelope chat.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		apiErr.Message = envelope.Error
		apiErr.Code = envelope.Code
	}
	return apiErr
}
