package instagram

import (
	"context"
	"io"
	"net/http"
	"time"

	errs "igtags/pkg/errors"
	"igtags/pkg/logger"
	"igtags/pkg/ratelimit"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// maxAssetSize caps a single download.
const maxAssetSize = 50 << 20

// Client downloads assets over plain HTTP.
type Client struct {
	httpClient  *http.Client
	headers     map[string]string
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewClient creates a new asset client. rateLimiter may be nil.
func NewClient(timeout time.Duration, userAgent string, rateLimiter ratelimit.Limiter, log logger.Logger) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Referer":         BaseURL + "/",
			"Sec-Fetch-Dest":  "image",
			"Sec-Fetch-Mode":  "no-cors",
			"Sec-Fetch-Site":  "cross-site",
		},
		rateLimiter: rateLimiter,
		logger:      logger.OrGlobal(log).WithField("component", "instagram_client"),
	}
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponseStatus maps non-2xx responses to typed errors.
func (c *Client) checkResponseStatus(resp *http.Response) error {
	apiErr := errs.FromStatus(resp.StatusCode, resp.Request.URL.String())
	if apiErr == nil {
		return nil
	}

	c.logger.WarnWithFields("unexpected response status", map[string]interface{}{
		"status": resp.StatusCode,
		"type":   string(apiErr.Type),
		"url":    resp.Request.URL.String(),
	})
	return apiErr
}

// DownloadAsset fetches url. Failures are returned as *errors.Error except
// for context cancellation.
func (c *Client) DownloadAsset(ctx context.Context, assetURL string) ([]byte, error) {
	if assetURL == "" {
		return nil, errs.New(errs.ErrorTypeNotFound, "post has no image url")
	}

	if err := ratelimit.Acquire(ctx, c.rateLimiter); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, "failed to create request: %v", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.New(errs.ErrorTypeNetwork, "failed to read asset: %v", err)
	}
	if len(data) > maxAssetSize {
		return nil, errs.New(errs.ErrorTypeParsing, "asset larger than %d bytes", maxAssetSize)
	}

	c.logger.DebugWithFields("asset downloaded", map[string]interface{}{
		"url":  assetURL,
		"size": len(data),
	})

	return data, nil
}
