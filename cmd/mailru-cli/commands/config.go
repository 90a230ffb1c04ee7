package commands

import (
	"mailru-backend/internal/mailru/browser"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/internal/mailru/scraper"
	"mailru-backend/internal/mailru/sig"
	"mailru-backend/internal/store"
	"mailru-backend/internal/telemetry"
	"time"
)

type HttpConfig struct {
	ApiUrl           string  `json:"api_url"`
	PublicUrl        string  `json:"public_url"`
	OAuthUrl         string  `json:"oauth_url"`
	AuthUrl          string  `json:"auth_url"`
	TimeoutSeconds   float64 `json:"timeout_seconds"`
	RateLimit        float64 `json:"rate_limit"`
	CloudflareBypass bool    `json:"cloudflare_bypass"`
}

type ScraperConfig struct {
	CacheSize           int                `json:"cache_size"`
	CacheTtlSeconds     float64            `json:"cache_ttl_seconds"`
	WaitTimeoutSeconds  float64            `json:"wait_timeout_seconds"`
	PollIntervalSeconds float64            `json:"poll_interval_seconds"`
	PollAttempts        int                `json:"poll_attempts"`
	MaxCycles           int                `json:"max_cycles"`
	JoinAttempts        int                `json:"join_attempts"`
	JoinIntervalSeconds float64            `json:"join_interval_seconds"`
	Selectors           *scraper.Selectors `json:"selectors"`
}

type LoginConfig struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Scope    string `json:"scope"`
}

type Config struct {
	Credentials sig.Credentials  `json:"credentials"`
	Login       LoginConfig      `json:"login"`
	Cookies     []cookie.Cookie  `json:"cookies"`
	CookiesFile string           `json:"cookies_file"`
	PassError   bool             `json:"pass_error"`
	Http        HttpConfig       `json:"http"`
	Browser     browser.Options  `json:"browser"`
	Scraper     ScraperConfig    `json:"scraper"`
	Store       store.Config     `json:"store"`
	Telemetry   telemetry.Config `json:"telemetry"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// scraperConfig converts the file config, unset fields keep their defaults.
func (c ScraperConfig) scraperConfig() scraper.Config {
	cfg := scraper.Config{
		CacheSize:    c.CacheSize,
		CacheTTL:     seconds(c.CacheTtlSeconds),
		WaitTimeout:  seconds(c.WaitTimeoutSeconds),
		PollInterval: seconds(c.PollIntervalSeconds),
		PollAttempts: c.PollAttempts,
		MaxCycles:    c.MaxCycles,
		JoinAttempts: c.JoinAttempts,
		JoinInterval: seconds(c.JoinIntervalSeconds),
	}
	if c.Selectors != nil {
		cfg.Selectors = *c.Selectors
	}
	return cfg
}
