package exchange

import (
	"fmt"
	"log/slog"

	"spotarb/internal/config"
	"spotarb/internal/signing"
)

// NewClient creates a new exchange client based on the given name and configuration.
func NewClient(name string, logger *slog.Logger, cfg *config.ExchangeConfig, opts ...Option) (ExchangeClient, error) {
	creds := signing.Credentials{APIKey: cfg.APIKey, Secret: cfg.SecretKey, Passphrase: cfg.Passphrase}
	opts = append([]Option{WithTimeout(cfg.Timeout)}, opts...)

	switch name {
	case okxName:
		return NewOKXClient(logger, cfg.BaseURL, creds, opts...), nil
	case kucoinName:
		return NewKuCoinClient(logger, cfg.BaseURL, creds, opts...), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}
