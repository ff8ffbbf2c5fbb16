package processor

import (
	"time"

	"fieldservice-engine/internal/common/config"
	"fieldservice-engine/internal/common/logger"
)

// ConfigResolver builds rail adapters from static configuration, one per
// channel. Company-specific overrides are not configured today, so every
// company shares the channel's rail.
type ConfigResolver struct {
	adapters map[string]*RailAdapter
}

func NewConfigResolver(rails map[string]config.RailConfig, log logger.Logger) *ConfigResolver {
	adapters := make(map[string]*RailAdapter, len(rails))
	for channel, rail := range rails {
		if !rail.Enabled {
			continue
		}
		adapters[channel] = NewRailAdapter(RailOptions{
			Name:          channel,
			BaseURL:       rail.BaseURL,
			APIKey:        rail.APIKey,
			WebhookSecret: rail.WebhookSecret,
			Timeout:       time.Duration(rail.Timeout) * time.Millisecond,
		}, log)
	}
	return &ConfigResolver{adapters: adapters}
}

func (r *ConfigResolver) AdapterFor(companyID, channel string) (Adapter, bool) {
	adapter, ok := r.adapters[channel]
	if !ok {
		return nil, false
	}
	return adapter, true
}

// Adapters returns all configured adapters, used to verify webhooks when
// the sending rail is identified by signature rather than by route.
func (r *ConfigResolver) Adapters() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}
