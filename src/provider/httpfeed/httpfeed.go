package httpfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
)

// HTTPFeedSource reads raw ticks from a JSON tick endpoint:
//
//	GET {base_url}/ticks?symbol=&from=&to=&limit=
//	GET {base_url}/ping
type HTTPFeedSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	baseURL string
}

// -----------------------------------------------------------------------------

func NewHTTPFeedSource(cfg *models.MConfig, netMgr interfaces.INetworkManager) *HTTPFeedSource {
	return &HTTPFeedSource{
		Config:  cfg,
		Network: netMgr,
		Logger:  logger.NewLogger(cfg, "HTTPFeedSource"),
		baseURL: strings.TrimRight(cfg.Provider.BaseURL, "/"),
	}
}

// -----------------------------------------------------------------------------

func (s *HTTPFeedSource) Name() string {
	return "http"
}

// -----------------------------------------------------------------------------

func (s *HTTPFeedSource) headers() map[string]string {
	if s.Config.Provider.APIKey == "" {
		return nil
	}
	return map[string]string{"X-API-Key": s.Config.Provider.APIKey}
}

// -----------------------------------------------------------------------------

// EnsureConnected pings the feed.
func (s *HTTPFeedSource) EnsureConnected(ctx context.Context) error {
	if s.baseURL == "" {
		return helpers.NewConnectivityError("provider base_url is empty", nil)
	}
	if _, err := s.Network.Get(ctx, s.baseURL+"/ping", nil, s.headers()); err != nil {
		return helpers.NewConnectivityError("tick feed unreachable", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

type tickResponse struct {
	Ticks []models.MRawTick `json:"ticks"`
	Error *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// -----------------------------------------------------------------------------

// FetchTicksInRange asks the feed for at most max_ticks_per_call records.
func (s *HTTPFeedSource) FetchTicksInRange(ctx context.Context, symbol string, startUnix, endUnix int64) ([]models.MRawTick, error) {
	params := map[string]string{
		"symbol": symbol,
		"from":   strconv.FormatInt(startUnix, 10),
		"to":     strconv.FormatInt(endUnix, 10),
	}
	if s.Config.Provider.MaxTicksPerCall > 0 {
		params["limit"] = strconv.Itoa(s.Config.Provider.MaxTicksPerCall)
	}

	respBytes, err := s.Network.Get(ctx, s.baseURL+"/ticks", params, s.headers())
	if err != nil {
		return nil, helpers.NewConnectivityError("tick feed unreachable for "+symbol, err)
	}

	return s.parseTicks(symbol, respBytes)
}

// -----------------------------------------------------------------------------

// parseTicks accepts either a bare JSON array or an object with a "ticks" field.
func (s *HTTPFeedSource) parseTicks(symbol string, data []byte) ([]models.MRawTick, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var ticks []models.MRawTick
		if err := json.Unmarshal(data, &ticks); err != nil {
			return nil, helpers.NewValidationError("malformed tick payload for "+symbol, err)
		}
		return ticks, nil
	}

	var resp tickResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, helpers.NewValidationError("malformed tick payload for "+symbol, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("feed error for %s: %s - %s", symbol, resp.Error.Code, resp.Error.Description)
	}

	s.Logger.Debug("Fetched %s: %d raw ticks", symbol, len(resp.Ticks))
	return resp.Ticks, nil
}
