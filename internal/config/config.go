package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverJSONBin  = "jsonbin"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Env           string
	HTTPAddr      string
	JWTSecret     string
	TelegramToken string
	TelegramUser  string
	TelegramAPI   string
	BaseURL       string
	AdminTGIDs    map[int64]struct{}
	AdminChatID   int64
	AdminLogin    string
	AdminPassword string
	AdminPassHash string
	Store         StoreConfig
	Shop          ShopConfig
	S3            S3Config
	Logging       LoggingConfig
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	Driver         string
	JSONBinBaseURL string
	JSONBinAPIKey  string
	Versioning     bool
	DatabaseURL    string
	MongoURL       string
	MongoDatabase  string
	CacheTTL       time.Duration
	MaxAttempts    int
	Bins           Bins
}

// Bins holds the collection document id of every entity.
type Bins struct {
	Settings    string
	Users       string
	Products    string
	Categories  string
	Orders      string
	Topups      string
	Banners     string
	Payments    string
	InputTables string
	Banned      string
}

// ShopConfig holds business tunables.
type ShopConfig struct {
	MaxFailedAttempts int
	Currency          string
	BroadcastDelay    time.Duration
	InitDataMaxAge    time.Duration
	DashboardSchedule string
}

type S3Config struct {
	Endpoint       string
	PublicEndpoint string
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:           getenv("APP_ENV", "dev"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramUser:  os.Getenv("TELEGRAM_BOT_USERNAME"),
		TelegramAPI:   getenv("TELEGRAM_API_ENDPOINT", "https://api.telegram.org/bot%s/%s"),
		BaseURL:       getenv("BASE_URL", ""),
		AdminTGIDs:    parseIDSet(os.Getenv("ADMIN_TELEGRAM_IDS")),
		AdminChatID:   getenvInt64("ADMIN_CHAT_ID", 0),
		AdminLogin:    os.Getenv("ADMIN_LOGIN"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminPassHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		Store: StoreConfig{
			Driver:         strings.ToLower(getenv("STORE_DRIVER", DriverJSONBin)),
			JSONBinBaseURL: getenv("JSONBIN_BASE_URL", "https://api.jsonbin.io/v3/b"),
			JSONBinAPIKey:  os.Getenv("JSONBIN_API_KEY"),
			Versioning:     getenvBool("JSONBIN_VERSIONING", false),
			DatabaseURL:    os.Getenv("DATABASE_URL"),
			MongoURL:       os.Getenv("MONGO_URL"),
			MongoDatabase:  getenv("MONGO_DATABASE", "gameshop"),
			CacheTTL:       getenvDuration("STORE_CACHE_TTL", 30*time.Second),
			MaxAttempts:    int(getenvInt64("STORE_MAX_ATTEMPTS", 5)),
			Bins: Bins{
				Settings:    getenv("BIN_SETTINGS", "settings"),
				Users:       getenv("BIN_USERS", "users"),
				Products:    getenv("BIN_PRODUCTS", "products"),
				Categories:  getenv("BIN_CATEGORIES", "categories"),
				Orders:      getenv("BIN_ORDERS", "orders"),
				Topups:      getenv("BIN_TOPUPS", "topups"),
				Banners:     getenv("BIN_BANNERS", "banners"),
				Payments:    getenv("BIN_PAYMENTS", "payments"),
				InputTables: getenv("BIN_INPUT_TABLES", "input_tables"),
				Banned:      getenv("BIN_BANNED", "banned"),
			},
		},
		Shop: ShopConfig{
			MaxFailedAttempts: int(getenvInt64("MAX_FAILED_PURCHASE_ATTEMPTS", 5)),
			Currency:          getenv("DEFAULT_CURRENCY", "MMK"),
			BroadcastDelay:    getenvDuration("BROADCAST_DELAY", 50*time.Millisecond),
			InitDataMaxAge:    getenvDuration("INIT_DATA_MAX_AGE", 24*time.Hour),
			DashboardSchedule: getenv("DASHBOARD_REFRESH", "@every 30s"),
		},
		S3: S3Config{
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
			Bucket:         os.Getenv("S3_BUCKET"),
			AccessKey:      os.Getenv("S3_ACCESS_KEY"),
			SecretKey:      os.Getenv("S3_SECRET_KEY"),
			Region:         getenv("S3_REGION", "us-east-1"),
			UseSSL:         getenvBool("S3_USE_SSL", true),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
			File:   os.Getenv("LOG_FILE"),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.AdminChatID == 0 && len(cfg.AdminTGIDs) == 1 {
		for id := range cfg.AdminTGIDs {
			cfg.AdminChatID = id
		}
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s StoreConfig) validate() error {
	switch s.Driver {
	case DriverJSONBin:
		if s.JSONBinAPIKey == "" {
			return fmt.Errorf("JSONBIN_API_KEY is required for the jsonbin store")
		}
		for name, id := range s.Bins.byName() {
			if id == "" {
				return fmt.Errorf("BIN_%s is required for the jsonbin store", name)
			}
		}
	case DriverPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverMongo:
		if s.MongoURL == "" {
			return fmt.Errorf("MONGO_URL is required for the mongo store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", s.Driver)
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("STORE_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func (b Bins) byName() map[string]string {
	return map[string]string{
		"SETTINGS":     b.Settings,
		"USERS":        b.Users,
		"PRODUCTS":     b.Products,
		"CATEGORIES":   b.Categories,
		"ORDERS":       b.Orders,
		"TOPUPS":       b.Topups,
		"BANNERS":      b.Banners,
		"PAYMENTS":     b.Payments,
		"INPUT_TABLES": b.InputTables,
		"BANNED":       b.Banned,
	}
}

// IsAdmin reports whether the telegram id is on the admin allowlist.
func (c *Config) IsAdmin(telegramID int64) bool {
	_, ok := c.AdminTGIDs[telegramID]
	return ok
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func parseIDSet(val string) map[int64]struct{} {
	set := make(map[int64]struct{})
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}
