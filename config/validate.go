package config

import (
	"fmt"
	"net/url"
	"strings"
)

// MaxRequestTimeoutSecs bounds the client request timeout.
const MaxRequestTimeoutSecs = 300

func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("config: endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return fmt.Errorf("config: endpoint must use http or https")
	}
	if strings.TrimSpace(endpoint.Host) == "" {
		return fmt.Errorf("config: endpoint host required")
	}
	if strings.TrimSpace(cfg.SignerKeystorePath) == "" {
		return fmt.Errorf("config: SignerKeystorePath required")
	}
	if cfg.RequestTimeoutSecs <= 0 || cfg.RequestTimeoutSecs > MaxRequestTimeoutSecs {
		return fmt.Errorf("config: RequestTimeoutSecs must be within 1..%d", MaxRequestTimeoutSecs)
	}
	return nil
}
