package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Address)
	assert.Equal(t, []string{"10:42", "10:44"}, cfg.Flush.Times)
	assert.Equal(t, "Asia/Kolkata", cfg.Flush.Timezone)
	assert.Equal(t, BackendCron, cfg.Flush.Backend)
	assert.Equal(t, "output/registrations.xlsx", cfg.LedgerPath)
	assert.EqualValues(t, 10<<20, cfg.MaxBodyBytes)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Zero(t, cfg.Flush.Timeout, "scheduled drains are unbounded by default")
	assert.Equal(t, 2*time.Minute, cfg.ShutdownTimeout)
}

func TestFlushTimeoutIndependentOfPDF(t *testing.T) {
	t.Setenv("REGIDESK_FLUSH_TIMEOUT", "10m")
	t.Setenv("REGIDESK_PDF_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Flush.Timeout)
	assert.Equal(t, 5*time.Second, cfg.PDF.Timeout)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("REGIDESK_ADDRESS", ":9090")
	t.Setenv("REGIDESK_FLUSH_TIMES", "09:00, 18:30")
	t.Setenv("EMAIL_USER", "sender@example.com")
	t.Setenv("FACULTY_EMAIL", "staff@example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, []string{"09:00", "18:30"}, cfg.Flush.Times)
	assert.Equal(t, "sender@example.com", cfg.SMTP.Username)
	assert.Equal(t, "staff@example.com", cfg.Mail.StaffRecipient)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regidesk.yaml")
	body := `
address: ":7000"
flush:
  times: ["07:15"]
  timezone: UTC
mail:
  staff_recipient: office@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Address)
	assert.Equal(t, []string{"07:15"}, cfg.Flush.Times)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Mail.StaffRecipient = "staff@example.com"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timezone", func(c *Config) { c.Flush.Timezone = "Mars/Olympus" }},
		{"no times", func(c *Config) { c.Flush.Times = nil }},
		{"bad time", func(c *Config) { c.Flush.Times = []string{"25:99"} }},
		{"bad backend", func(c *Config) { c.Flush.Backend = "kafka" }},
		{"bad limiter", func(c *Config) { c.RateLimit.Backend = "token" }},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }},
		{"no recipient", func(c *Config) { c.Mail.StaffRecipient = "" }},
		{"bad recipient", func(c *Config) { c.Mail.StaffRecipient = "not-an-address" }},
		{"bad port", func(c *Config) { c.SMTP.Port = 0 }},
		{"negative flush timeout", func(c *Config) { c.Flush.Timeout = -time.Second }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCronSpec(t *testing.T) {
	spec, err := CronSpec("10:42")
	require.NoError(t, err)
	assert.Equal(t, "42 10 * * *", spec)

	spec, err = CronSpec("0 9 * * 1-5")
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 1-5", spec)

	_, err = CronSpec("noon")
	assert.Error(t, err)
}
