package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/dispatch/internal/cache"
	"github.com/notifyhub/dispatch/internal/domain"
)

// Client queries the user directory service with a cache-aside layer.
// Cache failures degrade to direct lookups; they never fail a resolution.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      cache.Store
	cacheTTL   time.Duration
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, store cache.Store, cacheTTL time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		store:    store,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

type userResponse struct {
	Data RecipientInfo `json:"data"`
}

func (c *Client) Resolve(ctx context.Context, userID string, channel domain.Channel) (string, error) {
	key := cache.UserKey(userID)

	var cached RecipientInfo
	found, err := c.store.GetJSON(ctx, key, &cached)
	if err != nil {
		c.logger.Warn("user cache read failed", zap.String("user_id", userID), zap.Error(err))
	}
	if found {
		return pick(&cached, channel)
	}

	info, err := c.fetch(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := c.store.SetJSON(ctx, key, info, c.cacheTTL); err != nil {
		c.logger.Warn("user cache write failed", zap.String("user_id", userID), zap.Error(err))
	}

	return pick(info, channel)
}

func (c *Client) fetch(ctx context.Context, userID string) (*RecipientInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("create user request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Do not guess a recipient when the directory is unreachable.
		return nil, fmt.Errorf("%w: user directory: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: user directory status %d", domain.ErrServiceUnavailable, resp.StatusCode)
	}

	var out userResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode user response: %v", domain.ErrServiceUnavailable, err)
	}
	return &out.Data, nil
}

var _ Resolver = (*Client)(nil)
