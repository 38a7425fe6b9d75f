package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client renders templates by calling the external template service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type renderRequest struct {
	TemplateName string         `json:"template_name"`
	Language     string         `json:"language"`
	Variables    map[string]any `json:"variables"`
}

type renderResponse struct {
	Data Rendered `json:"data"`
}

func (c *Client) Render(ctx context.Context, templateCode string, variables map[string]any, language string) (*Rendered, error) {
	if language == "" {
		language = "en"
	}
	body, err := json.Marshal(renderRequest{
		TemplateName: templateCode,
		Language:     language,
		Variables:    variables,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/templates/render", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("template service status %d", resp.StatusCode)
	}

	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode render response: %w", err)
	}
	return &out.Data, nil
}

var _ Renderer = (*Client)(nil)
