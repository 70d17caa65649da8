package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	publicBaseURL = "https://www.reddit.com"
	oauthBaseURL  = "https://oauth.reddit.com"
	tokenURL      = "https://www.reddit.com/api/v1/access_token"
	redditTimeout = 30 * time.Second

	// Refresh the app token slightly before Reddit expires it.
	tokenExpirySlack = 1 * time.Minute
)

// Fetch failure kinds the caller can branch on with errors.Is.
var (
	ErrUnauthorized = errors.New("reddit: unauthorized")
	ErrRateLimited  = errors.New("reddit: rate limited")
)

// Options configures a Client. ClientID and ClientSecret are optional;
// when set, requests use app-only OAuth against oauth.reddit.com,
// otherwise the public JSON listing is used.
type Options struct {
	UserAgent    string
	ClientID     string
	ClientSecret string
}

// Client fetches subreddit listings via Reddit's JSON API.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Reddit listing client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.UserAgent) == "" {
		return nil, errors.New("reddit: user agent is required")
	}
	if (opts.ClientID == "") != (opts.ClientSecret == "") {
		return nil, errors.New("reddit: client id and secret must be set together")
	}

	base := publicBaseURL
	if opts.ClientID != "" {
		base = oauthBaseURL
	}

	return &Client{
		httpClient:   &http.Client{Timeout: redditTimeout},
		userAgent:    opts.UserAgent,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		baseURL:      base,
		tokenURL:     tokenURL,
	}, nil
}

// ListNew returns up to limit newest submissions of the subreddit, newest first.
func (c *Client) ListNew(ctx context.Context, subreddit string, limit int) ([]Submission, error) {
	if strings.TrimSpace(subreddit) == "" {
		return nil, errors.New("reddit: subreddit is required")
	}
	if limit <= 0 {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/r/%s/new.json?limit=%d", c.baseURL, url.PathEscape(subreddit), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	if c.clientID != "" {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		// Force a token refresh on the next call.
		c.invalidateToken()
		return nil, fmt.Errorf("%w: r/%s: status %d", ErrUnauthorized, subreddit, resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: r/%s", ErrRateLimited, subreddit)
	default:
		return nil, fmt.Errorf("r/%s: status %d", subreddit, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", subreddit, err)
	}

	return submissionsFromListing(listing, subreddit), nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token request: status %d", ErrUnauthorized, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySlack)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func submissionsFromListing(listing redditListing, subreddit string) []Submission {
	var subs []Submission
	for _, child := range listing.Data.Children {
		p := child.Data

		name := p.Name
		if name == "" && p.ID != "" {
			name = "t3_" + p.ID
		}
		if name == "" {
			continue
		}

		subs = append(subs, Submission{
			Name:          name,
			Subreddit:     subreddit,
			Title:         p.Title,
			Author:        p.Author,
			SelfText:      p.Selftext,
			URL:           p.URL,
			Permalink:     publicBaseURL + p.Permalink,
			IsSelf:        p.IsSelf,
			IsVideo:       p.IsVideo,
			Over18:        p.Over18,
			Score:         p.Score,
			NumComments:   p.NumComments,
			CreatedAt:     time.Unix(int64(p.CreatedUTC), 0).UTC(),
			Media:         p.Media,
			Preview:       p.Preview,
			MediaMetadata: p.MediaMetadata,
		})
	}
	return subs
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID            string                    `json:"id"`
	Name          string                    `json:"name"`
	Title         string                    `json:"title"`
	Author        string                    `json:"author"`
	Selftext      string                    `json:"selftext"`
	URL           string                    `json:"url"`
	Permalink     string                    `json:"permalink"`
	IsSelf        bool                      `json:"is_self"`
	IsVideo       bool                      `json:"is_video"`
	Over18        bool                      `json:"over_18"`
	Score         int                       `json:"score"`
	NumComments   int                       `json:"num_comments"`
	CreatedUTC    float64                   `json:"created_utc"`
	Media         *Media                    `json:"media"`
	Preview       *Preview                  `json:"preview"`
	MediaMetadata map[string]MediaMetaEntry `json:"media_metadata"`
}
