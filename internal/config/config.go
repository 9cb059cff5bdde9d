package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken       string
	EvolinkAPIKey  string
	EvolinkBaseURL string

	SubmitTimeout time.Duration
	PollTimeout   time.Duration
	PollInterval  time.Duration
	MaxWait       time.Duration
	FetchTimeout  time.Duration
	FetchRetries  int
	FetchMinBytes int64

	// Per-model prices in whole rubles and free-use quotas.
	Prices     map[string]int
	FreeLimits map[string]int

	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaReturnURL string
	TopupAmounts      []int

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// ReferenceStorageConfigured reports whether the optional S3 uploader can be
// built from this configuration.
func (c Config) ReferenceStorageConfigured() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3PublicBaseURL != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultBaseURL = "https://api.evolink.ai"

	cfg := Config{
		EvolinkBaseURL: normalizeBaseURL(getEnv("EVOLINK_BASE_URL", defaultBaseURL), defaultBaseURL),
		SubmitTimeout:  getDuration("SUBMIT_TIMEOUT_SECONDS", 60*time.Second),
		PollTimeout:    getDuration("POLL_TIMEOUT_SECONDS", 30*time.Second),
		PollInterval:   getDuration("POLL_INTERVAL_SECONDS", 5*time.Second),
		MaxWait:        getDuration("MAX_WAIT_SECONDS", 300*time.Second),
		FetchTimeout:   getDuration("FETCH_TIMEOUT_SECONDS", 60*time.Second),
		FetchRetries:   getInt("FETCH_MAX_RETRIES", 3),
		FetchMinBytes:  int64(getInt("FETCH_MIN_BYTES", 1024)),
		Prices: map[string]int{
			"text-to-image":  getInt("PRICE_TEXT_TO_IMAGE", 50),
			"text-to-video":  getInt("PRICE_TEXT_TO_VIDEO", 150),
			"image-to-video": getInt("PRICE_IMAGE_TO_VIDEO", 100),
			"image-to-image": getInt("PRICE_IMAGE_TO_IMAGE", 75),
		},
		FreeLimits: map[string]int{
			"text-to-image":  getInt("FREE_TEXT_TO_IMAGE", 3),
			"text-to-video":  getInt("FREE_TEXT_TO_VIDEO", 1),
			"image-to-video": getInt("FREE_IMAGE_TO_VIDEO", 1),
			"image-to-image": getInt("FREE_IMAGE_TO_IMAGE", 2),
		},
		YooKassaShopID:    getEnv("YOOKASSA_SHOP_ID", ""),
		YooKassaSecretKey: getEnv("YOOKASSA_SECRET_KEY", ""),
		YooKassaReturnURL: getEnv("YOOKASSA_RETURN_URL", "https://t.me"),
		TopupAmounts:      []int{100, 300, 500, 1000},
		AdminListenAddr:   getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "references"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.EvolinkAPIKey = os.Getenv("EVOLINK_API_KEY")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.EvolinkAPIKey == "" {
		missing = append(missing, "EVOLINK_API_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// normalizeBaseURL keeps requests on the documented API host even when the
// value comes in without a scheme.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}
	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off real environment variables is fine.
	return nil
}
