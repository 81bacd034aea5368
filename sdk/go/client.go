package giveawaysdk

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
)

// Client is a minimal Giveaway HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Campaign struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type Participant struct {
	Username string   `json:"username"`
	Types    []string `json:"types"`
	Weight   int      `json:"weight"`
}

type Winner struct {
	Rank     int       `json:"rank"`
	Username string    `json:"username"`
	Types    []string  `json:"types"`
	Weight   int       `json:"weight,omitempty"`
	DrawTime time.Time `json:"draw_time"`
}

type DrawResult struct {
	Winners           []Winner `json:"winners"`
	Method            string   `json:"draw_method"`
	Seed              int64    `json:"seed"`
	TotalParticipants int      `json:"total_participants"`
}

type Statistics struct {
	Total           int            `json:"total"`
	PerKind         map[string]int `json:"per_kind"`
	MultipleActions int            `json:"multiple_actions"`
}

type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Filters mirrors the eligibility rules of a draw.
type Filters struct {
	RequireRetweet bool     `json:"require_retweet,omitempty"`
	RequireLike    bool     `json:"require_like,omitempty"`
	RequireFollow  bool     `json:"require_follow,omitempty"`
	Exclude        []string `json:"exclude,omitempty"`
	Include        []string `json:"include,omitempty"`
}

type Lottery struct {
	Winners         int    `json:"winners"`
	Weighted        bool   `json:"weighted,omitempty"`
	Seed            *int64 `json:"seed,omitempty"`
	AllowDuplicates bool   `json:"allow_duplicates,omitempty"`
}

// DrawRequest runs a one-off draw. Lists is keyed by retweet, like or follower.
type DrawRequest struct {
	Lists   map[string][]string `json:"lists"`
	Filters Filters             `json:"filters,omitempty"`
	Lottery Lottery             `json:"lottery"`
}

type DrawResponse struct {
	Result       DrawResult    `json:"result"`
	Statistics   Statistics    `json:"statistics"`
	Participants []Participant `json:"participants"`
	Validation   Validation    `json:"validation"`
}

// Draw is a stored campaign draw.
type Draw struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	Requested  int        `json:"requested"`
	Result     DrawResult `json:"result"`
	Valid      bool       `json:"valid"`
	Reason     string     `json:"reason,omitempty"`
	ActorID    string     `json:"actor_id"`
	CreatedAt  string     `json:"created_at"`
}

// CampaignDrawRequest overrides stored lottery settings; zero values keep them.
type CampaignDrawRequest struct {
	Winners         int    `json:"winners,omitempty"`
	Weighted        *bool  `json:"weighted,omitempty"`
	Seed            *int64 `json:"seed,omitempty"`
	AllowDuplicates *bool  `json:"allow_duplicates,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	CampaignID string         `json:"campaign_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health pings the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "v0/health", nil, nil)
}

// Draw runs a stateless draw over the given lists.
func (c *Client) Draw(ctx context.Context, req DrawRequest) (DrawResponse, error) {
	var resp DrawResponse
	err := c.do(ctx, http.MethodPost, "v0/draws", req, &resp)
	return resp, err
}

// ListCampaigns returns all campaigns, newest first.
func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	var resp []Campaign
	err := c.do(ctx, http.MethodGet, "v0/campaigns", nil, &resp)
	return resp, err
}

// CreateCampaignDraw draws winners for a campaign and stores the result.
func (c *Client) CreateCampaignDraw(ctx context.Context, campaignID string, req CampaignDrawRequest) (Draw, error) {
	var resp Draw
	err := c.do(ctx, http.MethodPost, c.campaignPath(campaignID, "draws"), req, &resp)
	return resp, err
}

// CampaignDraws lists stored draws for a campaign.
func (c *Client) CampaignDraws(ctx context.Context, campaignID string, limit int) ([]Draw, error) {
	endpoint := c.campaignPath(campaignID, "draws")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Draw
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing for a campaign.
func (c *Client) EventsPage(ctx context.Context, campaignID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.campaignPath(campaignID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) campaignPath(campaignID, p string) string {
	return fmt.Sprintf("v0/campaigns/%s/%s", url.PathEscape(campaignID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
