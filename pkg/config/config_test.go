package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAIL_ENABLED", "true")
	t.Setenv("MAIL_USER", "notificaciones@example.org")
	t.Setenv("STATUS_WINDOW", "6h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.org, https://b.example.org")
	t.Setenv("VERIFICATION_BASE_URL", "https://carnet.example.org/verificar/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Mail.Enabled)
	assert.Equal(t, "notificaciones@example.org", cfg.Mail.From)
	assert.Equal(t, 6*time.Hour, cfg.Status.Window)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "https://carnet.example.org/verificar", cfg.Credential.VerificationBaseURL)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus"}
	assert.Equal(t, time.UTC, cfg.Location())
}
