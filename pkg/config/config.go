// Package config defines environment configuration structs and loaders.
package config

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

const (
	DefaultKamiHost = "localhost"
	DefaultKamiPort = "3000"
)

// KamiEnvConfig contains the Kami service target. Host and port carry no
// struct-level defaults so LoadKamiEnv can tell a configured value from
// a fallback and log which one it used.
type KamiEnvConfig struct {
	KamiHost string `env:"KAMI_HOST"`
	KamiPort string `env:"KAMI_PORT"`
}

// WalletEnvConfig holds wallet key configuration.
type WalletEnvConfig struct {
	WalletHotkey  string `env:"WALLET_HOTKEY"`
	WalletColdkey string `env:"WALLET_COLDKEY"`
	BittensorDir  string `env:"BITTENSOR_DIR, default=~/.bittensor"`
}

// ChainEnvConfig holds chain-specific environment values.
type ChainEnvConfig struct {
	Netuid   int `env:"NETUID, default=98"`
	AxonPort int `env:"AXON_PORT, default=8091"`
}

// StubServerEnvConfig configures the local Kami stub server. It listens
// on KAMI_PORT so a default-configured client finds it without extra
// setup.
type StubServerEnvConfig struct {
	Port          int `env:"KAMI_PORT, default=3000"`
	BodySizeLimit int `env:"SERVER_BODY_LIMIT, default=1048576"`
}

// Load populates a config struct of type T from the environment.
func Load[T any](ctx context.Context) (*T, error) {
	var cfg T
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadKamiEnv resolves the Kami host and port from the environment,
// logging either the configured value or the fallback used.
func LoadKamiEnv(ctx context.Context) (*KamiEnvConfig, error) {
	var cfg KamiEnvConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}

	if cfg.KamiHost == "" {
		cfg.KamiHost = DefaultKamiHost
		log.Info().Str("kami_host", cfg.KamiHost).Msg("KAMI_HOST not specified, using default")
	} else {
		log.Info().Str("kami_host", cfg.KamiHost).Msg("using configured KAMI_HOST")
	}

	if cfg.KamiPort == "" {
		cfg.KamiPort = DefaultKamiPort
		log.Info().Str("kami_port", cfg.KamiPort).Msg("KAMI_PORT not specified, using default")
	} else {
		log.Info().Str("kami_port", cfg.KamiPort).Msg("using configured KAMI_PORT")
	}

	return &cfg, nil
}
