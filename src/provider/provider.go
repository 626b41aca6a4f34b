package provider

import (
	"fmt"
	"strings"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/models"
	"microstructure-cache/src/provider/httpfeed"
	"microstructure-cache/src/provider/synthetic"
)

// NewTickProvider builds the provider selected by provider.type.
func NewTickProvider(cfg *models.MConfig, netMgr interfaces.INetworkManager) (interfaces.ITickProvider, error) {
	switch strings.ToLower(cfg.Provider.Type) {
	case "http", "httpfeed":
		if netMgr == nil {
			return nil, helpers.NewConfigurationError("http provider needs a network manager", nil)
		}
		return httpfeed.NewHTTPFeedSource(cfg, netMgr), nil
	case "", "synthetic":
		return synthetic.NewSyntheticSource(cfg), nil
	default:
		return nil, helpers.NewConfigurationError(fmt.Sprintf("unknown provider type %q", cfg.Provider.Type), nil)
	}
}
