/**
 * @description
 * This package provides a client for the parts of the GitHub REST API the claim
 * resolver needs: issues, issue timelines, pull requests and commits. Requests are
 * throttled with a token bucket. Responses that can no longer change (closed issues,
 * merged pull requests, commits) are cached in memory; open issues and timelines are
 * always fetched so a fresh close or merge is seen immediately.
 *
 * @dependencies
 * - net/http, encoding/json: Standard Go libraries.
 * - golang.org/x/time/rate: Client-side request throttling.
 * - github.com/patrickmn/go-cache: TTL cache for response bodies.
 */
package githubclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.github.com"
	timelinePageSize = 100
	maxTimelinePages = 10
)

var ErrNotFound = errors.New("github resource not found")

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github api returned status %d: %s", e.StatusCode, e.Body)
}

// Client is a client for the GitHub REST API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	limiter *rate.Limiter
	cache   *gocache.Cache
}

// Options tunes throttling and caching. Zero values select the defaults.
type Options struct {
	RequestsPerSecond float64
	Burst             int
	CacheTTL          time.Duration
}

// NewClient creates a new GitHub API client.
func NewClient(baseURL, token string, opts Options) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		cache:   gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
	}
}

type User struct {
	Login string `json:"login"`
}

type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    User   `json:"owner"`
}

// Issue is an issue or pull request as returned by the issues endpoints.
type Issue struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	State       string     `json:"state"`
	User        User       `json:"user"`
	ClosedAt    *time.Time `json:"closed_at"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
	Repository *Repository `json:"repository,omitempty"`
}

func (i *Issue) IsClosed() bool {
	return strings.EqualFold(i.State, "closed")
}

func (i *Issue) IsPullRequest() bool {
	return i.PullRequest != nil
}

// TimelineEvent is one entry of an issue timeline.
type TimelineEvent struct {
	Event     string     `json:"event"`
	Actor     *User      `json:"actor,omitempty"`
	CommitID  string     `json:"commit_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Source    *struct {
		Type  string `json:"type"`
		Issue *Issue `json:"issue,omitempty"`
	} `json:"source,omitempty"`
}

type PullRequest struct {
	Number   int        `json:"number"`
	State    string     `json:"state"`
	Merged   bool       `json:"merged"`
	MergedAt *time.Time `json:"merged_at"`
	User     User       `json:"user"`
}

type Commit struct {
	SHA    string `json:"sha"`
	Author *User  `json:"author"`
}

// GetIssue fetches a single issue.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number string) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(number))
	if err := c.get(ctx, path, &issue, issue.IsClosed); err != nil {
		return nil, fmt.Errorf("get issue %s/%s#%s: %w", owner, repo, number, err)
	}
	return &issue, nil
}

// ListIssueTimeline returns the timeline of an issue, oldest first.
func (c *Client) ListIssueTimeline(ctx context.Context, owner, repo string, number string) ([]TimelineEvent, error) {
	var events []TimelineEvent
	for page := 1; page <= maxTimelinePages; page++ {
		var batch []TimelineEvent
		path := fmt.Sprintf("/repos/%s/%s/issues/%s/timeline?per_page=%d&page=%d",
			url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(number), timelinePageSize, page)
		if err := c.get(ctx, path, &batch, nil); err != nil {
			return nil, fmt.Errorf("list timeline %s/%s#%s: %w", owner, repo, number, err)
		}
		events = append(events, batch...)
		if len(batch) < timelinePageSize {
			break
		}
	}
	return events, nil
}

// GetPullRequest fetches a pull request, including its merge state.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	var pr PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", url.PathEscape(owner), url.PathEscape(repo), number)
	if err := c.get(ctx, path, &pr, func() bool { return pr.Merged }); err != nil {
		return nil, fmt.Errorf("get pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	return &pr, nil
}

// GetCommit fetches a commit and its linked GitHub author.
func (c *Client) GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	var commit Commit
	path := fmt.Sprintf("/repos/%s/%s/commits/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))
	if err := c.get(ctx, path, &commit, func() bool { return true }); err != nil {
		return nil, fmt.Errorf("get commit %s/%s@%s: %w", owner, repo, sha, err)
	}
	return &commit, nil
}

// get decodes the response for path into out. The body is cached when final reports, after
// decoding, that the resource cannot change anymore; a nil final never caches.
func (c *Client) get(ctx context.Context, path string, out interface{}, final func() bool) error {
	fullURL := c.BaseURL + path
	if cached, found := c.cache.Get(fullURL); found {
		return json.Unmarshal(cached.([]byte), out)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if final != nil && final() {
		c.cache.SetDefault(fullURL, body)
	}
	return nil
}
