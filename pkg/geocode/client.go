// Package geocode is a thin reverse geocoding client for Nominatim compatible endpoints.
package geocode

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Result is the subset of a reverse lookup the dispatch flow stores on a request.
type Result struct {
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
}

// Options configures the client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Retries   int
	Logger    *zap.Logger
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Postcode string `json:"postcode"`
	} `json:"address"`
	Error string `json:"error"`
}

// Client resolves coordinates to a postal address.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient builds a resty backed client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "dispatch-api/1.0"
	}
	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)

	return &Client{http: httpClient, logger: opts.Logger}
}

// Reverse looks up the address for a coordinate.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Result, error) {
	var body reverseResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "jsonv2",
			"lat":    strconv.FormatFloat(lat, 'f', 6, 64),
			"lon":    strconv.FormatFloat(lon, 'f', 6, 64),
		}).
		SetResult(&body).
		Get("/reverse")
	if err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("reverse geocode: unexpected status %d", resp.StatusCode())
	}
	if body.Error != "" {
		return nil, fmt.Errorf("reverse geocode: %s", body.Error)
	}

	c.logger.Debug("reverse geocode resolved",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Bool("has_postcode", body.Address.Postcode != ""),
	)
	return &Result{Address: body.DisplayName, Postcode: body.Address.Postcode}, nil
}
