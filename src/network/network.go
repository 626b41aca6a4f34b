package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
)

type AsyncNetworkManager struct {
	Config  *models.MConfig
	Proxies interfaces.IProxyPool
	Logger  *logger.Logger

	client *http.Client
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	var proxies []string
	if cfg.Network.Enabled {
		proxies = cfg.Network.Proxies
	}
	cooldown := time.Duration(cfg.Network.ProxyCooldownSeconds) * time.Second

	nm := &AsyncNetworkManager{
		Config:  cfg,
		Proxies: helpers.NewProxyPool(proxies, cfg.Network.UserAgent, cooldown),
		Logger:  log,
	}

	// the pool is consulted per request, so a benched proxy is skipped
	// without rebuilding the client
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(*http.Request) (*url.URL, error) {
		return nm.Proxies.Proxy(), nil
	}
	nm.client = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.Network.RequestTimeout) * time.Second,
	}
	return nm
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and proxy rotation. Retries stop as
// soon as ctx is done.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string, headers map[string]string) ([]byte, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqUrl.RawQuery = q.Encode()

	finalUrl := reqUrl.String()

	maxRetries := nm.Config.Network.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i*i) * 250 * time.Millisecond):
			}
		}

		body, retry, err := nm.do(ctx, finalUrl, headers)
		if err == nil {
			nm.Proxies.ReportSuccess()
			return body, nil
		}
		lastErr = err
		if retry && nm.Proxies.Size() > 0 {
			nm.Proxies.ReportFailure()
		}
		if !retry || ctx.Err() != nil {
			break
		}
		nm.Logger.Debug("Request failed (attempt %d/%d): %v", i+1, maxRetries+1, err)
	}

	return nil, fmt.Errorf("request to %s failed: %w", reqUrl.Path, lastErr)
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, finalUrl string, headers map[string]string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalUrl, nil)
	if err != nil {
		return nil, false, err
	}

	req.Header.Set("User-Agent", nm.Proxies.UserAgent())
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := nm.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("bad status: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("bad status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return body, false, nil
}
