package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("FREEPIK_EMAIL", "bot@example.com")
	t.Setenv("FREEPIK_PASSWORD", "secret")
	t.Setenv("APIKEY_2CAPTCHA", "captcha-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_CHAT_IDS", "111, 222;bogus 333")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{111, 222, 333}, cfg.AdminChatIDs)
	assert.True(t, cfg.IsAdmin(222))
	assert.False(t, cfg.IsAdmin(444))
	assert.Equal(t, "downloads", cfg.DownloadDir)
	assert.Equal(t, 10, cfg.MaxQueueSize)
	assert.Equal(t, 180*time.Second, cfg.LicenseDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.CleanupMaxAge)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Empty(t, cfg.RedisAddr())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LICENSE_DELAY", "5m")
	t.Setenv("MAX_QUEUE_SIZE", "3")
	t.Setenv("HEADLESS", "false")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("CLEANUP_MAX_AGE", "3600")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.LicenseDelay)
	assert.Equal(t, time.Hour, cfg.CleanupMaxAge)
	assert.Equal(t, 3, cfg.MaxQueueSize)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "redis:6379", cfg.RedisAddr())
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("FREEPIK_PASSWORD", "")
	t.Setenv("APIKEY_2CAPTCHA", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKEY_2CAPTCHA, FREEPIK_PASSWORD")
}

func TestLoadRejectsEmptyQueue(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_QUEUE_SIZE", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadEnvFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("FPBOT_TEST_A=from-file\nFPBOT_TEST_B=\"quoted\"\n"), 0o644))
	t.Setenv("FPBOT_TEST_A", "from-env")
	t.Setenv("FPBOT_TEST_B", "")
	os.Unsetenv("FPBOT_TEST_B")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("FPBOT_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("FPBOT_TEST_B"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://bot:xxxxx@db:5432/freepik?sslmode=disable",
		MaskDSN("postgres://bot:hunter2@db:5432/freepik?sslmode=disable"))
	assert.Equal(t, "postgres://db/freepik", MaskDSN("postgres://db/freepik"))
}
