package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	primaryArchiveDomain = "archive.pitwall.dev"
	mirrorArchiveDomain  = "archive-mirror.pitwall.dev"
)

// Client interface for testability
type Client interface {
	ListDrivers(ctx context.Context, desc Descriptor) ([]string, error)
	DownloadTelemetry(ctx context.Context, desc Descriptor, driver string, dest io.Writer) (int64, error)
	DownloadLaps(ctx context.Context, desc Descriptor, dest io.Writer) (int64, error)
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

type driversResponse struct {
	Drivers []string `json:"drivers"`
}

func NewClient(baseURL string, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (c *HTTPClient) ListDrivers(ctx context.Context, desc Descriptor) ([]string, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/v1/sessions/%d/%s/%s/drivers", c.baseURL, desc.Year, desc.Event, desc.Session)
	c.logger.Debug("requesting", zap.String("url", url))

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Read body before closing for error messages
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = ErrRateLimited
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		var dr driversResponse
		if err := json.Unmarshal(body, &dr); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}

		if len(dr.Drivers) == 0 {
			return nil, ErrNotFound
		}

		return dr.Drivers, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *HTTPClient) DownloadTelemetry(ctx context.Context, desc Descriptor, driver string, dest io.Writer) (int64, error) {
	url := fmt.Sprintf("%s/v1/sessions/%d/%s/%s/telemetry/%s", c.baseURL, desc.Year, desc.Event, desc.Session, driver)
	return c.download(ctx, url, dest)
}

func (c *HTTPClient) DownloadLaps(ctx context.Context, desc Descriptor, dest io.Writer) (int64, error) {
	url := fmt.Sprintf("%s/v1/sessions/%d/%s/%s/laps", c.baseURL, desc.Year, desc.Event, desc.Session)
	return c.download(ctx, url, dest)
}

func (c *HTTPClient) download(ctx context.Context, url string, dest io.Writer) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	size, err := c.downloadOnce(ctx, url, dest)
	if err == nil || errors.Is(err, ErrNotFound) {
		return size, err
	}

	// Mirror retry only when nothing was written yet, otherwise dest would
	// end up with the partial primary body followed by the mirror's.
	if size > 0 || !strings.Contains(url, primaryArchiveDomain) {
		return size, err
	}

	mirrorURL := strings.Replace(url, primaryArchiveDomain, mirrorArchiveDomain, 1)
	c.logger.Info("retrying with mirror",
		zap.String("original", url),
		zap.String("mirror", mirrorURL),
		zap.Error(err))

	return c.downloadOnce(ctx, mirrorURL, dest)
}

func (c *HTTPClient) downloadOnce(ctx context.Context, url string, dest io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	// Stream to destination
	return io.Copy(dest, resp.Body)
}
