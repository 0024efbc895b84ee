package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultEndpoint = "http://localhost:5000/predict"
	DefaultFallback = "Miscellaneous"
	defaultTimeout  = 5 * time.Second

	healthProbeDescription = "health check"
	maxResponseBytes       = 64 << 10
)

var ErrEmptyCategory = errors.New("classifier returned an empty category")

type Config struct {
	Endpoint string
	Timeout  time.Duration
	Fallback string
}

type predictRequest struct {
	Description string `json:"description"`
}

type predictResponse struct {
	Category string `json:"category"`
}

// Client talks to the external category prediction service. Categorize
// never fails: any problem with the service yields the fallback category.
type Client struct {
	endpoint   string
	fallback   string
	httpClient *http.Client
	cache      Cache
	group      singleflight.Group
	log        zerolog.Logger
}

// NewClient builds a classifier client. cache may be nil.
func NewClient(cfg Config, cache Cache, log zerolog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		fallback:   cfg.Fallback,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		log:        log,
	}
}

func (c *Client) Fallback() string {
	return c.fallback
}

func (c *Client) Categorize(ctx context.Context, description string) string {
	// keyed verbatim, so case and spacing variants are classified separately
	key := description

	if c.cache != nil {
		category, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.log.Warn().Err(err).Msg("category cache read failed")
		} else if ok {
			return category
		}
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		// shared by every caller waiting on this key, so one caller's
		// cancellation must not turn the others into fallbacks
		callCtx := context.WithoutCancel(ctx)

		category, err := c.predict(callCtx, description)
		if err != nil {
			c.log.Warn().Err(err).Str("fallback", c.fallback).Msg("classification unavailable")
			return c.fallback, nil
		}
		if c.cache != nil {
			if err := c.cache.Set(callCtx, key, category); err != nil {
				c.log.Warn().Err(err).Msg("category cache write failed")
			}
		}
		return category, nil
	})
	return v.(string)
}

// Ping sends a probe prediction and reports whether the service answered
// with a usable category.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.predict(ctx, healthProbeDescription)
	return err
}

func (c *Client) predict(ctx context.Context, description string) (string, error) {
	body, err := json.Marshal(predictRequest{Description: description})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", fmt.Errorf("classifier responded with %s", resp.Status)
	}

	var out predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode classifier response: %w", err)
	}

	category := strings.TrimSpace(out.Category)
	if category == "" {
		return "", ErrEmptyCategory
	}
	return category, nil
}
