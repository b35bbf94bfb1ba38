// Package hub resolves and fetches model repositories from a Hugging Face compatible hub.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cavaliercoder/grab"
	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/progress"
	"github.com/comicaholic/genai-studio/internal/transfer"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL  = "https://huggingface.co"
	DefaultRevision = "main"

	dirPerm         = 0o755
	maxErrorBody    = 1024
	unknownSize     = "Unknown"
	defaultParallel = 4
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	Token       string
	Revision    string
	MaxParallel int
}

// Client talks to the hub API. It implements transfer.Resolver and transfer.Fetcher.
type Client struct {
	baseURL     string
	revision    string
	maxParallel int
	httpClient  *http.Client
	grab        *grab.Client
}

type sibling struct {
	RFilename string `json:"rfilename"`
	Size      int64  `json:"size"`
}

type modelInfo struct {
	ID       string    `json:"id"`
	SHA      string    `json:"sha"`
	Siblings []sibling `json:"siblings"`
}

func (m *modelInfo) totalBytes() int64 {
	var total int64
	for _, s := range m.Siblings {
		total += s.Size
	}

	return total
}

// NewClient builds a client. With a token every request carries it as a bearer token.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Revision == "" {
		cfg.Revision = DefaultRevision
	}

	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultParallel
	}

	var rt http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)

	if cfg.Token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   rt,
		}
	}

	httpClient := &http.Client{Transport: rt}

	grabClient := grab.NewClient()
	grabClient.HTTPClient = httpClient
	grabClient.UserAgent = "modelq"

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		revision:    cfg.Revision,
		maxParallel: cfg.MaxParallel,
		httpClient:  httpClient,
		grab:        grabClient,
	}
}

// ResolveArtifactInfo implements transfer.Resolver. The size is the sum of all repository
// files; DisplaySize is "Unknown" when the hub reports no sizes.
func (c *Client) ResolveArtifactInfo(ctx context.Context, artifactID string) (*transfer.ArtifactInfo, error) {
	info, err := c.modelInfo(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	total := info.totalBytes()

	display := unknownSize
	if total > 0 {
		display = humanize.Bytes(uint64(total))
	}

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "resolved artifact",
		"artifact_id", artifactID, "files", len(info.Siblings), "size", display)

	return &transfer.ArtifactInfo{TotalBytes: total, DisplaySize: display}, nil
}

// FetchArtifact implements transfer.Fetcher. Every repository file is downloaded below
// targetDir, at most MaxParallel at a time; partially downloaded files are resumed.
// Progress is observed from targetDir by the caller, so onProgress is not used.
func (c *Client) FetchArtifact(
	ctx context.Context,
	artifactID, targetDir string,
	_ progress.Func,
) (*transfer.FetchResult, error) {
	logger := logctx.LoggerFromContext(ctx).With("artifact_id", artifactID)

	info, err := c.modelInfo(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(targetDir, dirPerm); err != nil {
		return nil, &transfer.DirectoryError{Path: targetDir, Reason: "cannot create target directory", Err: err}
	}

	revision := info.SHA
	if revision == "" {
		revision = c.revision
	}

	logger.InfoContext(ctx, "fetching artifact",
		"files", len(info.Siblings), "revision", revision, "target", targetDir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)

	for _, f := range info.Siblings {
		g.Go(func() error {
			return c.fetchFile(gctx, artifactID, revision, f.RFilename, targetDir)
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, err
	}

	return &transfer.FetchResult{LocalPath: targetDir, TotalBytes: info.totalBytes()}, nil
}

func (c *Client) fetchFile(ctx context.Context, artifactID, revision, name, targetDir string) error {
	logger := logctx.LoggerFromContext(ctx)

	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return &transfer.DirectoryError{Path: name, Reason: "file path escapes the target directory"}
	}

	dst := filepath.Join(targetDir, rel)

	req, err := grab.NewRequest(dst, c.endpoint(artifactID, "resolve", revision, name))
	if err != nil {
		return &transfer.NetworkError{Operation: "fetch_file", APIMessage: err.Error(), Err: err}
	}

	resp := c.grab.Do(req.WithContext(ctx))
	if err := resp.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if resp.HTTPResponse != nil && resp.HTTPResponse.StatusCode >= http.StatusBadRequest {
			return statusError("fetch_file", artifactID, resp.HTTPResponse.StatusCode, err.Error())
		}

		return &transfer.NetworkError{Operation: "fetch_file", APIMessage: err.Error(), Err: err}
	}

	logger.DebugContext(ctx, "file downloaded",
		"file", name, "size", humanize.Bytes(uint64(resp.BytesComplete())), "resumed", resp.DidResume)

	return nil
}

func (c *Client) modelInfo(ctx context.Context, artifactID string) (*modelInfo, error) {
	if err := validateArtifactID(artifactID); err != nil {
		return nil, err
	}

	endpoint := c.endpoint("api", "models", artifactID, "revision", c.revision) + "?blobs=true"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build model info request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transfer.NetworkError{Operation: "model_info", APIMessage: err.Error(), Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, statusError("model_info", artifactID, resp.StatusCode, apiMessage(body, resp.Status))
	}

	var info modelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &transfer.NetworkError{Operation: "model_info", APIMessage: "invalid response body", Err: err}
	}

	return &info, nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		parts := strings.Split(s, "/")
		for i, p := range parts {
			parts[i] = url.PathEscape(p)
		}

		escaped = append(escaped, strings.Join(parts, "/"))
	}

	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// validateArtifactID accepts "name" and "owner/name".
func validateArtifactID(artifactID string) error {
	parts := strings.Split(artifactID, "/")
	if len(parts) > 2 {
		return &transfer.ResolutionError{ArtifactID: artifactID, Reason: "malformed identifier"}
	}

	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return &transfer.ResolutionError{ArtifactID: artifactID, Reason: "malformed identifier"}
		}
	}

	return nil
}

func statusError(operation, artifactID string, code int, message string) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &transfer.AuthenticationError{Operation: operation, Err: errors.New(message)}
	case http.StatusNotFound:
		return &transfer.ResolutionError{ArtifactID: artifactID, Reason: "repository, revision or file not found"}
	default:
		return &transfer.NetworkError{Operation: operation, StatusCode: code, APIMessage: message}
	}
}

// apiMessage extracts {"error": "..."} from a hub error body.
func apiMessage(body []byte, fallback string) string {
	var payload struct {
		Error string `json:"error"`
	}

	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}

	return fallback
}
