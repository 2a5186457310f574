// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Cookie
	// CookieSecure は未指定の場合 BASE_URL が https かどうかで決まる。
	CookieSecure *bool `env:"COOKIE_SECURE"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Settlement
	Currency string `env:"CURRENCY" envDefault:"BRL"`

	// Rate Limit（req/min）
	RateLimitGeneral      int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitNotification int `env:"RATE_LIMIT_NOTIFICATION" envDefault:"600"`

	// Payment expiry worker
	PaymentPendingTTL     time.Duration `env:"PAYMENT_PENDING_TTL" envDefault:"24h"`
	PaymentExpiryInterval time.Duration `env:"PAYMENT_EXPIRY_INTERVAL" envDefault:"15m"`

	// Observability
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合は、該当項目をまとめたエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SecureCookies はCookieにSecure属性を付けるかを返す。
func (c *Config) SecureCookies() bool {
	if c.CookieSecure != nil {
		return *c.CookieSecure
	}
	return strings.HasPrefix(c.BaseURL, "https://")
}

func (c *Config) validate() error {
	var invalid []string
	if c.RateLimitGeneral <= 0 {
		invalid = append(invalid, "RATE_LIMIT_GENERAL")
	}
	if c.RateLimitNotification <= 0 {
		invalid = append(invalid, "RATE_LIMIT_NOTIFICATION")
	}
	if c.PaymentPendingTTL <= 0 {
		invalid = append(invalid, "PAYMENT_PENDING_TTL")
	}
	if c.PaymentExpiryInterval <= 0 {
		invalid = append(invalid, "PAYMENT_EXPIRY_INTERVAL")
	}
	if len(c.Currency) != 3 {
		invalid = append(invalid, "CURRENCY")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("environment variables must be positive or well-formed: %v", invalid)
	}
	return nil
}
