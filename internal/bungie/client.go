package bungie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clan-tracker/internal/config"
	"clan-tracker/internal/constants"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

// Domain conditions reported by the stats source. These are not transient
// failures and are never retried.
var (
	// ErrPrivateProfile signals error code 1665: the profile owner has
	// hidden their history. Treated as "no data", not a failure.
	ErrPrivateProfile = errors.New("profile is private")

	// ErrMaintenance signals the upstream system is disabled for
	// maintenance. Callers should pause, not fail permanently.
	ErrMaintenance = errors.New("stats source is down for maintenance")
)

const (
	errorCodeSuccess        = 1
	errorCodeSystemDisabled = 5
	errorCodePrivateProfile = 1665
)

// APIError is a non-success domain error code returned inside an otherwise
// valid response envelope.
type APIError struct {
	Code    int
	Status  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.Code, e.Status, e.Message)
}

type Client struct {
	apiKey  string
	baseURL string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:  cfg.BungieAPIKey,
		baseURL: cfg.BungieAPIURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

// envelope is the standard response wrapper of the stats source. Response is
// left raw so each endpoint can decode its own shape.
type envelope struct {
	Response        json.RawMessage `json:"Response"`
	ErrorCode       int             `json:"ErrorCode"`
	ErrorStatus     string          `json:"ErrorStatus"`
	Message         string          `json:"Message"`
	ThrottleSeconds int             `json:"ThrottleSeconds"`
}

// doRequest performs one GET against the stats source with the shared retry
// policy: bounded attempts with backoff on connect errors and 5xx only.
// Domain error codes and 4xx are surfaced immediately.
func doRequest[T any](ctx context.Context, c *Client, path string) (*T, error) {
	raw, err := doRequestBytes(ctx, c, path)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// doRequestBytes is doRequest without the final decode: it returns the raw
// Response payload so callers that archive the upstream document keep every
// field, not just the ones the typed structs carry.
func doRequestBytes(ctx context.Context, c *Client, path string) (json.RawMessage, error) {
	var body []byte

	backoff := retry.WithMaxRetries(constants.HTTPRetryAttempts, retry.NewFibonacci(constants.HTTPRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(c.baseURL + path)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.Set("X-API-Key", c.apiKey)

		var doErr error
		if deadline, ok := ctx.Deadline(); ok {
			doErr = c.client.DoDeadline(req, resp, deadline)
		} else {
			doErr = c.client.Do(req, resp)
		}
		if doErr != nil {
			return retry.RetryableError(doErr)
		}

		status := resp.StatusCode()
		if status >= 500 {
			return retry.RetryableError(fmt.Errorf("HTTP error: %d", status))
		}
		if status != fasthttp.StatusOK {
			return fmt.Errorf("HTTP error: %d", status)
		}

		body = append(body[:0], resp.Body()...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}

	switch env.ErrorCode {
	case errorCodeSuccess:
	case errorCodePrivateProfile:
		return nil, ErrPrivateProfile
	case errorCodeSystemDisabled:
		c.logger.Warn().
			Str("path", path).
			Int("throttle_seconds", env.ThrottleSeconds).
			Msg("stats source reports maintenance")
		return nil, ErrMaintenance
	default:
		return nil, &APIError{Code: env.ErrorCode, Status: env.ErrorStatus, Message: env.Message}
	}

	return env.Response, nil
}

func (c *Client) GetProfile(ctx context.Context, membershipType int, membershipID string) (*ProfileResponse, error) {
	path := fmt.Sprintf("/Destiny2/%d/Profile/%s/?components=100,200,204", membershipType, membershipID)
	return doRequest[ProfileResponse](ctx, c, path)
}

func (c *Client) GetActivityHistory(ctx context.Context, membershipType int, membershipID, characterID string, mode, page, count int) (*ActivityHistoryResponse, error) {
	path := fmt.Sprintf("/Destiny2/%d/Account/%s/Character/%s/Stats/Activities/?mode=%d&page=%d&count=%d",
		membershipType, membershipID, characterID, mode, page, count)
	return doRequest[ActivityHistoryResponse](ctx, c, path)
}

// GetLatestActivity fetches only the most recent activity of the given mode.
// Used by the discoverer's short-circuit check before any pagination.
func (c *Client) GetLatestActivity(ctx context.Context, membershipType int, membershipID, characterID string, mode int) (*ActivityHistoryResponse, error) {
	return c.GetActivityHistory(ctx, membershipType, membershipID, characterID, mode, 0, 1)
}

// GetPostGameReport returns the decoded report together with the raw Response
// payload. The raw bytes are what gets archived; re-marshalling the struct
// would silently drop every field it does not model.
func (c *Client) GetPostGameReport(ctx context.Context, instanceID int64) (*PostGameReport, []byte, error) {
	path := fmt.Sprintf("/Destiny2/Stats/PostGameCarnageReport/%d/", instanceID)
	raw, err := doRequestBytes(ctx, c, path)
	if err != nil {
		return nil, nil, err
	}

	var report PostGameReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &report, raw, nil
}

func (c *Client) GetClanRoster(ctx context.Context, clanID int64) (*ClanRosterResponse, error) {
	path := fmt.Sprintf("/GroupV2/%d/Members/", clanID)
	return doRequest[ClanRosterResponse](ctx, c, path)
}

func (c *Client) GetManifest(ctx context.Context) (*ManifestResponse, error) {
	return doRequest[ManifestResponse](ctx, c, "/Destiny2/Manifest/")
}

// Download fetches a raw asset (the manifest content database zip) from an
// absolute URL, outside the JSON envelope handling.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("X-API-Key", c.apiKey)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.Do(req, resp)
	}
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode())
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}
