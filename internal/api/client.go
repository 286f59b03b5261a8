package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/open-webui/openwebui-cli/internal/config"
	"github.com/open-webui/openwebui-cli/internal/secrets"
)

// ClientOptions control credential resolution for a single invocation.
// Zero values fall through the precedence chain: flag > environment >
// keyring/config file > defaults.
type ClientOptions struct {
	Profile string
	URI     string
	Token   string
	Timeout time.Duration

	// AllowUnauthenticated lets the client proceed without an Authorization
	// header when no token can be resolved (used by login).
	AllowUnauthenticated bool
}

// Client is an HTTP client bound to one OpenWebUI server. A fresh client is
// created per command invocation; nothing is cached across calls.
type Client struct {
	baseURL    string
	profile    string
	token      string
	httpClient *http.Client
}

// NewClient resolves the effective URI, profile, and token, and returns a
// client bound to them.
func NewClient(opts ClientOptions) (*Client, error) {
	uri, profile, err := config.Effective(opts.Profile, opts.URI)
	if err != nil {
		return nil, err
	}

	token := opts.Token
	if token == "" {
		settings, err := config.LoadSettings()
		if err != nil {
			return nil, err
		}
		token = settings.Token
	}
	if token == "" {
		stored, err := secrets.GetToken(profile, uri)
		switch {
		case err == nil:
			token = stored
		case errors.Is(err, secrets.ErrNotFound):
			// fall through; handled below
		default:
			if !opts.AllowUnauthenticated {
				return nil, Authf("cannot access system keyring: %v\n"+
					"install a keyring backend, or pass a token via --token or OPENWEBUI_TOKEN", err)
			}
		}
	}
	if token == "" && !opts.AllowUnauthenticated {
		return nil, Authf("no token found for profile %q\n"+
			"run 'openwebui auth login', set OPENWEBUI_TOKEN, or pass --token", profile)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		timeout = time.Duration(cfg.Defaults.Timeout) * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(uri, "/"),
		profile:    profile,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the resolved server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Profile returns the resolved profile name.
func (c *Client) Profile() string { return c.profile }

// HasToken reports whether the client sends an Authorization header.
func (c *Client) HasToken() bool { return c.token != "" }

// Close releases idle connections. Safe to defer on every exit path.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Get performs a GET request and returns the classified response body.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return nil, err
	}

	slog.Debug("request", "method", method, "path", path, "request_id", req.Header.Get("X-Request-ID"))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Networkf("failed to read response body: %v", err)
	}

	slog.Debug("response", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	if !json.Valid(respBody) {
		// Non-JSON 2xx body: wrap so callers always see JSON.
		wrapped, _ := json.Marshal(map[string]string{"text": string(respBody)})
		return wrapped, nil
	}
	return respBody, nil
}

// PostStream issues a POST request and hands the live response back for
// streaming consumption. Error statuses are classified before any streaming
// is attempted; the caller owns resp.Body on success.
func (c *Client) PostStream(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}

	slog.Debug("request", "method", http.MethodPost, "path", path, "stream", true,
		"request_id", req.Header.Get("X-Request-ID"))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, classifyStatus(resp.StatusCode, respBody)
	}
	return resp, nil
}

// UploadFile posts a local file as a multipart form (field "file") and
// returns the classified response body.
func (c *Client) UploadFile(ctx context.Context, path, filePath string) (json.RawMessage, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	slog.Debug("upload", "path", path, "file", filepath.Base(filePath))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Networkf("failed to read response body: %v", err)
	}
	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}
	if !json.Valid(respBody) {
		wrapped, _ := json.Marshal(map[string]string{"text": string(respBody)})
		return wrapped, nil
	}
	return respBody, nil
}
