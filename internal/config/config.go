// Package config 从环境变量（以及可选的 .env 文件）加载 relay 与 walletctl 的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles 按优先级排列，已存在的环境变量不会被覆盖。
var DefaultEnvFiles = []string{".env.local", ".env"}

// Relay 是 relay-api 的配置。
type Relay struct {
	BaseURL              string        `env:"NOTUS_API_BASE_URL"`
	APIKey               string        `env:"NOTUS_API_KEY"`
	HTTPAddr             string        `env:"RELAY_HTTP_ADDR" envDefault:":8080"`
	GRPCHealthAddr       string        `env:"RELAY_GRPC_HEALTH_ADDR"`
	UpstreamTimeout      time.Duration `env:"RELAY_UPSTREAM_TIMEOUT" envDefault:"15s"`
	UpstreamMaxBodyBytes int64         `env:"RELAY_UPSTREAM_MAX_BODY_BYTES" envDefault:"33554432"`
	RateLimit            float64       `env:"RELAY_RATE_LIMIT" envDefault:"0"`
	RateBurst            int           `env:"RELAY_RATE_BURST" envDefault:"10"`
	ShutdownTimeout      time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// UpstreamConfigured 报告 provider 的 base URL 与 API key 是否都已配置。
func (r Relay) UpstreamConfigured() bool {
	return strings.TrimSpace(r.BaseURL) != "" && strings.TrimSpace(r.APIKey) != ""
}

// Client 是 walletctl 的配置。
type Client struct {
	RelayURL string        `env:"WALLETCTL_RELAY_URL" envDefault:"http://localhost:8080"`
	Store    string        `env:"WALLETCTL_STORE" envDefault:"file:.walletctl/keystore.json"`
	Timeout  time.Duration `env:"WALLETCTL_TIMEOUT" envDefault:"30s"`
}

// LoadEnvFiles 加载存在的 .env 文件，缺失的文件被忽略。
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseEnv 将环境变量解析到 target。
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadRelay 加载 .env 文件后解析 relay 配置。
func LoadRelay(files ...string) (Relay, error) {
	var cfg Relay
	if err := LoadEnvFiles(files...); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.UpstreamTimeout <= 0 {
		return cfg, errors.New("RELAY_UPSTREAM_TIMEOUT must be positive")
	}
	if cfg.UpstreamMaxBodyBytes <= 0 {
		return cfg, errors.New("RELAY_UPSTREAM_MAX_BODY_BYTES must be positive")
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return cfg, nil
}

// LoadClient 加载 .env 文件后解析 walletctl 配置。
func LoadClient(files ...string) (Client, error) {
	var cfg Client
	if err := LoadEnvFiles(files...); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
