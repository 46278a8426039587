package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はバックエンドサーバーの設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge        int // 秒
	SessionRetentionDays int // 期限切れセッションを保持する日数

	// Rate Limit
	RateLimitGeneral int // 1ユーザーあたりの1分間のリクエスト数
	RateLimitLogin   int // 1IPあたりの1分間のログイン試行数

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からバックエンドのConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 30*86400)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 7)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", strings.HasPrefix(cfg.BaseURL, "https://"))
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:8081")

	return cfg, nil
}

// ClientConfig はクライアント（アプリ本体）の設定を保持する。
type ClientConfig struct {
	// Backend
	Endpoint            string
	FavoritesCollection string
	SearchCollection    string
	GatewayTimeout      time.Duration
	SessionFile         string // 空の場合はセッションをプロセス内でのみ保持する

	// Catalog
	TMDBAPIKey       string
	TMDBBaseURL      string
	CatalogRateLimit float64 // 1秒あたりのリクエスト数
	CatalogTimeout   time.Duration
}

// LoadClient は環境変数からクライアントのConfigを読み込む。
// MOVIESYNC_ENDPOINT と TMDB_API_KEY は必須。
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	var missing []string

	cfg.Endpoint = os.Getenv("MOVIESYNC_ENDPOINT")
	if cfg.Endpoint == "" {
		missing = append(missing, "MOVIESYNC_ENDPOINT")
	}

	cfg.TMDBAPIKey = os.Getenv("TMDB_API_KEY")
	if cfg.TMDBAPIKey == "" {
		missing = append(missing, "TMDB_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.FavoritesCollection = getEnvString("FAVORITES_COLLECTION_ID", "favorites")
	cfg.SearchCollection = getEnvString("SEARCH_COLLECTION_ID", "search_counts")
	cfg.GatewayTimeout = getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second)
	cfg.SessionFile = getEnvString("SESSION_FILE", "")
	cfg.TMDBBaseURL = getEnvString("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	cfg.CatalogRateLimit = getEnvFloat("CATALOG_RATE_LIMIT", 20)
	cfg.CatalogTimeout = getEnvDuration("CATALOG_TIMEOUT", 10*time.Second)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
