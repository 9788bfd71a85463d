package webhook

import (
	"fmt"

	"github.com/mattjoyce/linerelay/internal/config"
	"github.com/mattjoyce/linerelay/internal/line"
)

// FromGlobalConfig converts the service section of config.Config to
// webhook.Config, parsing the max body size.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	maxBodySize, err := config.ParseByteSize(cfg.Service.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("invalid max_body_size %q: %w", cfg.Service.MaxBodySize, err)
	}

	return Config{
		Listen:          cfg.Service.Listen,
		CallbackPath:    cfg.Service.CallbackPath,
		SignatureHeader: line.SignatureHeader,
		MaxBodySize:     maxBodySize,
		ReadTimeout:     cfg.Service.ReadTimeout,
		WriteTimeout:    cfg.Service.WriteTimeout,
	}, nil
}
