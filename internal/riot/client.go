package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

// ErrNotFound means the Riot API has no data for the requested id. It is a
// valid negative result, not a fault; callers translate it into a status
// transition instead of retrying.
var ErrNotFound = errors.New("riot: not found")

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("riot API error: %d (%s)", e.StatusCode, e.URL)
}

// IsTransient reports whether the fault is worth retrying: rate limits and
// server-side errors.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == fasthttp.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	// Network-level failures (timeouts, resets) are transient too.
	return err != nil && !errors.Is(err, ErrNotFound)
}

type Client struct {
	apiKey      string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	AppLimit      string `json:"app_limit"`
	AppLimitCount string `json:"app_limit_count"`
	RetryAfter    int    `json:"retry_after"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *Client) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *Client) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-App-Rate-Limit")); limit != "" {
		c.rateLimit.AppLimit = limit
	}
	if count := string(resp.Header.Peek("X-App-Rate-Limit-Count")); count != "" {
		c.rateLimit.AppLimitCount = count
	}
	if after := string(resp.Header.Peek("Retry-After")); after != "" {
		if val, err := strconv.Atoi(after); err == nil {
			c.rateLimit.RetryAfter = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// GetMatch fetches one finished match from Match-V5. Returns ErrNotFound when
// Riot has no data for the id.
func (c *Client) GetMatch(ctx context.Context, regionalRoute, matchID string) (*MatchDTO, error) {
	url := fmt.Sprintf("https://%s.api.riotgames.com/lol/match/v5/matches/%s", regionalRoute, matchID)
	return doRequest[MatchDTO](ctx, c, url)
}

// GetMatchIDs fetches recent match ids for a puuid, newest first. A zero
// queueID skips the queue filter.
func (c *Client) GetMatchIDs(ctx context.Context, regionalRoute, puuid string, count, queueID int) ([]string, error) {
	url := fmt.Sprintf("https://%s.api.riotgames.com/lol/match/v5/matches/by-puuid/%s/ids?count=%d", regionalRoute, puuid, count)
	if queueID > 0 {
		url = fmt.Sprintf("%s&queue=%d&type=ranked", url, queueID)
	}
	ids, err := doRequest[[]string](ctx, c, url)
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (c *Client) GetAccountByPuuid(ctx context.Context, regionalRoute, puuid string) (*AccountDTO, error) {
	url := fmt.Sprintf("https://%s.api.riotgames.com/riot/account/v1/accounts/by-puuid/%s", regionalRoute, puuid)
	return doRequest[AccountDTO](ctx, c, url)
}

func (c *Client) GetSummonerByPuuid(ctx context.Context, platformRoute, puuid string) (*SummonerDTO, error) {
	url := fmt.Sprintf("https://%s.api.riotgames.com/lol/summoner/v4/summoners/by-puuid/%s", platformRoute, puuid)
	return doRequest[SummonerDTO](ctx, c, url)
}

func (c *Client) GetLeagueEntries(ctx context.Context, platformRoute, puuid string) ([]LeagueEntryDTO, error) {
	url := fmt.Sprintf("https://%s.api.riotgames.com/lol/league/v4/entries/by-puuid/%s", platformRoute, puuid)
	entries, err := doRequest[[]LeagueEntryDTO](ctx, c, url)
	if err != nil {
		return nil, err
	}
	return *entries, nil
}

func doRequest[T any](ctx context.Context, client *Client, url string) (*T, error) {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	var result T
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := client.do(ctx, url)
		if err != nil {
			if IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", url, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("X-Riot-Token", c.apiKey)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	c.updateRateLimit(resp)

	switch {
	case resp.StatusCode() == fasthttp.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode() != fasthttp.StatusOK:
		return nil, &StatusError{StatusCode: resp.StatusCode(), URL: url}
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}
