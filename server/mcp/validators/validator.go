package validators

import (
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/config"
)

// CreateDefaultValidators builds the standard validator chain with the limits
// the config carries, falling back to the package defaults when a getter
// fails.
func CreateDefaultValidators(cfg config.IConfig) []shared.MessageValidator {
	maxSize := config.DefaultMaxMessageSize
	perSecond := config.DefaultRequestsPerSecond
	perMinute := config.DefaultRequestsPerMinute
	if cfg != nil {
		if v, err := cfg.MaxMessageSize(); err == nil {
			maxSize = v
		}
		if v, err := cfg.RequestsPerSecond(); err == nil {
			perSecond = v
		}
		if v, err := cfg.RequestsPerMinute(); err == nil {
			perMinute = v
		}
	}
	return []shared.MessageValidator{
		NewThrottling(perSecond, perMinute),
		NewMessageSizeValidator(maxSize),
		NewMethodValidator(),
	}
}
