package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultEnvFile = "config.env"

// BankDetails is shown to users paying by bank transfer.
type BankDetails struct {
	BankName      string
	BranchName    string
	AccountName   string
	AccountNumber string
}

type Config struct {
	TelegramToken string
	AdminChatIDs  []int64

	FreepikEmail    string
	FreepikPassword string
	CaptchaAPIKey   string
	Headless        bool
	ChromePath      string

	DownloadDir      string
	MaxQueueSize     int
	LicenseDelay     time.Duration
	CleanupMaxAge    time.Duration
	SessionStatePath string

	StoreDriver string
	PostgresDSN string
	SQLitePath  string
	PlansFile   string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	Bank BankDetails

	SentryDSN   string
	Environment string
	HTTPAddr    string
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the environment. Only the values the
// download worker cannot run without are required.
func Load() (*Config, error) {
	cfg := FromEnv()

	var missing []string
	for key, v := range map[string]string{
		"TELEGRAM_BOT_TOKEN": cfg.TelegramToken,
		"FREEPIK_EMAIL":      cfg.FreepikEmail,
		"FREEPIK_PASSWORD":   cfg.FreepikPassword,
		"APIKEY_2CAPTCHA":    cfg.CaptchaAPIKey,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if cfg.MaxQueueSize <= 0 {
		return nil, fmt.Errorf("MAX_QUEUE_SIZE must be positive, got %d", cfg.MaxQueueSize)
	}
	if len(cfg.AdminChatIDs) == 0 {
		log.Printf("Config: ADMIN_CHAT_IDS is empty, payment proofs will not reach anyone")
	}
	return cfg, nil
}

// FromEnv reads the configuration without checking required keys. The admin
// commands use it since they only touch storage.
func FromEnv() *Config {
	return &Config{
		TelegramToken: getEnvString("TELEGRAM_BOT_TOKEN", ""),
		AdminChatIDs:  ParseIDs(os.Getenv("ADMIN_CHAT_IDS")),

		FreepikEmail:    getEnvString("FREEPIK_EMAIL", ""),
		FreepikPassword: os.Getenv("FREEPIK_PASSWORD"),
		CaptchaAPIKey:   getEnvString("APIKEY_2CAPTCHA", ""),
		Headless:        getEnvBool("HEADLESS", true),
		ChromePath:      getEnvString("CHROME_PATH", ""),

		DownloadDir:      getEnvString("DOWNLOAD_DIR", "downloads"),
		MaxQueueSize:     getEnvInt("MAX_QUEUE_SIZE", 10),
		LicenseDelay:     getEnvDuration("LICENSE_DELAY", 180*time.Second),
		CleanupMaxAge:    getEnvDuration("CLEANUP_MAX_AGE", 7*24*time.Hour),
		SessionStatePath: getEnvString("SESSION_STATE_PATH", "auth_state.json"),

		StoreDriver: getEnvString("STORE_DRIVER", "postgres"),
		PostgresDSN: getEnvString("POSTGRES_DSN", ""),
		SQLitePath:  getEnvString("SQLITE_PATH", "freepik.db"),
		PlansFile:   getEnvString("PLANS_FILE", ""),

		RedisHost:     getEnvString("REDIS_HOST", ""),
		RedisPort:     getEnvString("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		Bank: BankDetails{
			BankName:      getEnvString("BANK_NAME", "Bank of Ceylon"),
			BranchName:    getEnvString("BRANCH_NAME", "Main Branch"),
			AccountName:   getEnvString("ACCOUNT_NAME", "Your Name"),
			AccountNumber: getEnvString("ACCOUNT_NUMBER", "1234567890"),
		},

		SentryDSN:   getEnvString("SENTRY_DSN", ""),
		Environment: getEnvString("ENVIRONMENT", "production"),
		HTTPAddr:    getEnvString("HTTP_ADDR", ""),
	}
}

func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminChatIDs {
		if a == id {
			return true
		}
	}
	return false
}

// ParseIDs reads a comma, semicolon or whitespace separated list of ids,
// skipping anything that is not a number.
func ParseIDs(raw string) []int64 {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' })
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// MaskDSN hides the password in a connection URL for logging.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func getEnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Config: invalid %s=%q, using %t", key, v, def)
		return def
	}
	return b
}

// getEnvDuration accepts Go durations ("3m") or plain seconds ("180").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Config: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
