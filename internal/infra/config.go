package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment
// variables. Each provider credential independently enables that adapter;
// absence means the adapter refuses fast without a network call.
type Config struct {
	AppEnv string
	Port   string

	// Preview pipeline.
	PreviewDeadline time.Duration
	LineArtVariant  string
	WatermarkText   string
	MaxUploadMB     int64

	// Provider credentials and endpoints.
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	ReplicateToken   string
	ReplicateBaseURL string
	StabilityAPIKey  string
	StabilityBaseURL string

	// Shopify Admin + App Proxy.
	ShopifyShopDomain    string
	ShopifyAdminToken    string
	ShopifyAPIVersion    string
	ShopifyAPISecret     string
	ProxyVerifySignature bool

	// Finalize fallback storage and optional preview cache.
	StorageDir      string
	StorageBaseURL  string
	DatabaseURL     string
	PreviewCacheTTL time.Duration

	AllowedOrigins   []string
	RateLimitPerMin  int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Nothing is required: with no credentials at all the
// service still serves previews from the local filter.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   port,

		PreviewDeadline: time.Millisecond * time.Duration(getEnvInt("PREVIEW_DEADLINE_MS", 6500)),
		LineArtVariant:  getEnv("LINEART_VARIANT", "classic"),
		WatermarkText:   getEnv("WATERMARK_TEXT", "DillyDallyDog.com • PREVIEW"),
		MaxUploadMB:     int64(getEnvInt("MAX_UPLOAD_MB", 15)),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:      getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		ReplicateToken:   os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL: getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		StabilityAPIKey:  os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL: getEnv("STABILITY_BASE_URL", "https://api.stability.ai"),

		ShopifyShopDomain:    os.Getenv("SHOPIFY_SHOP_DOMAIN"),
		ShopifyAdminToken:    os.Getenv("SHOPIFY_ADMIN_TOKEN"),
		ShopifyAPIVersion:    getEnv("SHOPIFY_API_VERSION", "2024-07"),
		ShopifyAPISecret:     os.Getenv("SHOPIFY_API_SECRET"),
		ProxyVerifySignature: getEnvInt("PROXY_VERIFY_SIGNATURE", 0) != 0,

		StorageDir:      getEnv("STORAGE_DIR", "./data/art"),
		StorageBaseURL:  getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		PreviewCacheTTL: time.Second * time.Duration(getEnvInt("PREVIEW_CACHE_TTL_SECONDS", 3600)),

		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
