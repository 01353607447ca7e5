// Package assistants implements the HTTP client for the remote assistants API:
// thread, message, and run CRUD plus the tool-output submission protocol. The
// remote service is a black box; this package only mirrors its wire contract.
package assistants

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aide/internal/aideerrors"
	"aide/internal/httpclient"
	"aide/internal/logging"
)

const betaHeader = "assistants=v2"

// Config carries client construction parameters.
type Config struct {
	APIKey           string
	BaseURL          string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// Client speaks the assistants wire protocol over HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxBody    int64
	logger     logging.Logger
}

// NewClient constructs a Client from the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpclient.New(cfg.Timeout),
		maxBody:    cfg.MaxResponseBytes,
		logger:     logging.NewComponentLogger("assistants"),
	}
}

// apiError is the error envelope returned by the remote service.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &aideerrors.RemoteError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setCommonHeaders(req)

	c.logger.Debug("%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &aideerrors.RemoteError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := httpclient.ReadBounded(resp.Body, c.maxBody)
	if err != nil {
		return &aideerrors.RemoteError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(op, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &aideerrors.RemoteError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("OpenAI-Beta", betaHeader)
}

func (c *Client) decodeError(op string, status int, data []byte) error {
	var envelope apiError
	message := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	c.logger.Warn("%s failed: status=%d message=%s", op, status, message)
	return &aideerrors.RemoteError{Op: op, StatusCode: status, Message: message}
}

// RetrieveAssistant fetches a remote assistant configuration.
func (c *Client) RetrieveAssistant(ctx context.Context, assistantID string) (*Assistant, error) {
	var out Assistant
	if err := c.do(ctx, "assistants.retrieve", http.MethodGet, "/assistants/"+assistantID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAssistant registers a new remote assistant.
func (c *Client) CreateAssistant(ctx context.Context, req CreateAssistantRequest) (*Assistant, error) {
	var out Assistant
	if err := c.do(ctx, "assistants.create", http.MethodPost, "/assistants", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAssistant mutates a remote assistant configuration.
func (c *Client) UpdateAssistant(ctx context.Context, assistantID string, req UpdateAssistantRequest) (*Assistant, error) {
	var out Assistant
	if err := c.do(ctx, "assistants.update", http.MethodPost, "/assistants/"+assistantID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAssistant removes a remote assistant.
func (c *Client) DeleteAssistant(ctx context.Context, assistantID string) error {
	return c.do(ctx, "assistants.delete", http.MethodDelete, "/assistants/"+assistantID, nil, nil)
}

// CreateThread opens a new thread, optionally seeded with messages.
func (c *Client) CreateThread(ctx context.Context, seed []SeedMessage) (*Thread, error) {
	body := map[string]any{}
	if len(seed) > 0 {
		body["messages"] = seed
	}
	var out Thread
	if err := c.do(ctx, "threads.create", http.MethodPost, "/threads", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMessage appends a message to an existing thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	body := map[string]any{"role": role, "content": content}
	var out Message
	if err := c.do(ctx, "messages.create", http.MethodPost, "/threads/"+threadID+"/messages", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage removes a message from a thread.
func (c *Client) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	path := "/threads/" + threadID + "/messages/" + messageID
	return c.do(ctx, "messages.delete", http.MethodDelete, path, nil, nil)
}

// ListMessages fetches thread history with optional pagination.
func (c *Client) ListMessages(ctx context.Context, threadID string, query ListMessagesQuery) (*MessageList, error) {
	values := url.Values{}
	if query.Order != "" {
		values.Set("order", query.Order)
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.After != "" {
		values.Set("after", query.After)
	}
	if query.Before != "" {
		values.Set("before", query.Before)
	}
	path := "/threads/" + threadID + "/messages"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out MessageList
	if err := c.do(ctx, "messages.list", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRun starts a new run for the thread against the assistant.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	body := map[string]any{"assistant_id": assistantID}
	var out Run
	if err := c.do(ctx, "runs.create", http.MethodPost, "/threads/"+threadID+"/runs", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveRun fetches the current state of a run.
func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var out Run
	path := "/threads/" + threadID + "/runs/" + runID
	if err := c.do(ctx, "runs.retrieve", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitToolOutputs answers a requires_action run with the full output set.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	body := map[string]any{"tool_outputs": outputs}
	path := "/threads/" + threadID + "/runs/" + runID + "/submit_tool_outputs"
	var out Run
	if err := c.do(ctx, "runs.submit_tool_outputs", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveFile fetches file metadata.
func (c *Client) RetrieveFile(ctx context.Context, fileID string) (*File, error) {
	var out File
	if err := c.do(ctx, "files.retrieve", http.MethodGet, "/files/"+fileID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFile removes an uploaded file.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.do(ctx, "files.delete", http.MethodDelete, "/files/"+fileID, nil, nil)
}

// FileContent streams the raw bytes of a stored file. The caller owns the
// returned reader and must close it.
func (c *Client) FileContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.content", Err: err}
	}
	c.setCommonHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.content", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := httpclient.ReadBounded(resp.Body, c.maxBody)
		_ = resp.Body.Close()
		return nil, c.decodeError("files.content", resp.StatusCode, data)
	}
	return resp.Body, nil
}

// UploadFile stores a file on the remote side under the given purpose.
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader, purpose string) (*File, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.create", Err: err}
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.create", Err: err}
	}
	if err := writer.WriteField("purpose", purpose); err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.create", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.create", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.create", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.create", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := httpclient.ReadBounded(resp.Body, c.maxBody)
	if err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.create", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.decodeError("files.create", resp.StatusCode, data)
	}
	var out File
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &aideerrors.RemoteError{Op: "files.create", Err: err}
	}
	return &out, nil
}
