package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// APIError is a non-success response from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client represents an HTTP client for the short link API
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient creates a new short link client
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateLink creates a short link
func (c *Client) CreateLink(ctx context.Context, reqBody domain.CreateLinkRequest) (*domain.CreateLinkResponse, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/shorturls", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result domain.CreateLinkResponse
	if err := c.do(req, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStats retrieves the details and click history of a short code
func (c *Client) GetStats(ctx context.Context, code string) (*domain.LinkStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/shorturls/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var stats domain.LinkStats
	if err := c.do(req, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body domain.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			apiErr.Message = body.Error
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
