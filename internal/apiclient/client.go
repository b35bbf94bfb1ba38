package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/comicaholic/genai-studio/internal/http/rest"
	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/queue"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultServer  = "http://localhost:9091"
	downloadsPath  = "/api/downloads"
	defaultTimeout = 30 * time.Second
)

// ErrNotFound is returned when the server does not know the download.
var ErrNotFound = errors.New("download not found")

// APIError is a non-2xx answer from the queue server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}

	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the download queue HTTP API.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultServer
	}

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Enqueue queues an artifact and returns the item id.
func (c *Client) Enqueue(ctx context.Context, artifactID string) (string, error) {
	var resp rest.EnqueueResponse
	if err := c.do(ctx, http.MethodPost, downloadsPath, rest.EnqueueRequest{ArtifactID: artifactID}, &resp); err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", artifactID, err)
	}

	return resp.ID, nil
}

func (c *Client) List(ctx context.Context) (queue.Lists, error) {
	var lists queue.Lists
	if err := c.do(ctx, http.MethodGet, downloadsPath, nil, &lists); err != nil {
		return queue.Lists{}, fmt.Errorf("failed to list downloads: %w", err)
	}

	return lists, nil
}

func (c *Client) Get(ctx context.Context, id string) (queue.Item, error) {
	var item queue.Item
	if err := c.do(ctx, http.MethodGet, itemPath(id), nil, &item); err != nil {
		return queue.Item{}, fmt.Errorf("failed to get download %s: %w", id, err)
	}

	return item, nil
}

// Cancel reports false when the server refused because the item is unknown or already finished.
func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	var resp rest.SuccessResponse

	err := c.do(ctx, http.MethodPost, itemPath(id)+"/cancel", nil, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to cancel download %s: %w", id, err)
	}

	return resp.Success, nil
}

func (c *Client) Remove(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, itemPath(id), nil, nil); err != nil {
		return fmt.Errorf("failed to remove download %s: %w", id, err)
	}

	return nil
}

// ClearCompleted returns how many completed items the server dropped.
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var resp rest.ClearResponse
	if err := c.do(ctx, http.MethodPost, downloadsPath+"/clear-completed", nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to clear completed downloads: %w", err)
	}

	return resp.Removed, nil
}

func itemPath(id string) string {
	return downloadsPath + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	logger := logctx.LoggerFromContext(ctx).With("method", method, "path", path)

	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Debug("sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func apiError(resp *http.Response) error {
	var payload rest.ErrorResponse

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}

	return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
}
