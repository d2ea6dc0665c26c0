// Package upload sends classification records to the remote record store
// and keeps a local outbox of records that could not be sent.
package upload

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

	"github.com/menta2k/palmscan/pkg/types"
)

// DefaultTimeout bounds every request to the record store
const DefaultTimeout = 30 * time.Second

// Client talks to the record store HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a record store client for serverURL
func NewClient(serverURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Upload posts a record and returns the server-assigned scan id
func (c *Client) Upload(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error) {
	body, err := c.sendRequest(ctx, http.MethodPost, "/api/upload-mobile", record)
	if err != nil {
		return nil, err
	}

	var resp types.CloudResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("store rejected upload: %s", firstNonEmpty(resp.Message, resp.Error, "no reason given"))
	}
	if resp.ScanID == "" {
		return nil, fmt.Errorf("store response has no scan_id")
	}

	return &types.UploadReceipt{
		ScanID:    resp.ScanID,
		Message:   resp.Message,
		ImageURL:  resp.ImageURL,
		Timestamp: resp.Timestamp,
	}, nil
}

// ListScans returns stored scans, newest first
func (c *Client) ListScans(ctx context.Context) ([]types.ScanSummary, error) {
	body, err := c.sendRequest(ctx, http.MethodGet, "/api/scans", nil)
	if err != nil {
		return nil, err
	}

	var resp types.ScansResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}
	return resp.Scans, nil
}

// DeleteScan removes a stored scan
func (c *Client) DeleteScan(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("scan id is required")
	}
	_, err := c.sendRequest(ctx, http.MethodDelete, "/api/scans/"+url.PathEscape(id), nil)
	return err
}

// Health queries the store health endpoint
func (c *Client) Health(ctx context.Context) (*types.HealthStatus, error) {
	body, err := c.sendRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return nil, err
	}

	var status types.HealthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}
	return &status, nil
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
