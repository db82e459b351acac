package internal

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/mantlz")
	t.Setenv("AUTH_ISSUER", "https://id.mantlz.test/")
	t.Setenv("AUTH_AUDIENCE", "mantlz-dashboard")
	t.Setenv("ENV", "development")
	t.Setenv("CRON_SECRET", "")
	t.Setenv("TRACKING_SECRET", "")
}

func TestNewConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "local", cfg.StorageProvider)
	assert.Equal(t, 60, cfg.APIRateLimit)
	assert.Equal(t, time.Minute, cfg.APIRateWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.EmailSendInterval)
	assert.NotEmpty(t, cfg.TrackingSecret, "development falls back to a fixed key")
	assert.False(t, cfg.BillingEnabled())
	assert.True(t, cfg.IsDevelopment())
}

func TestNewConfig_Lists(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STRIPE_PRO_PRICE_IDS", "price_pro_m, price_pro_y,,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.mantlz.test")
	t.Setenv("BASE_URL", "https://api.mantlz.test/")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"price_pro_m", "price_pro_y"}, cfg.StripeProPriceIDs)
	assert.Empty(t, cfg.StripeStandardPriceIDs)
	assert.Equal(t, []string{"https://app.mantlz.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "https://api.mantlz.test", cfg.BaseURL)
}

func TestNewConfig_EmailSendInterval(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_SEND_INTERVAL", "2s")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.EmailSendInterval)
}

func TestNewConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"missing issuer", map[string]string{"AUTH_ISSUER": ""}, "AUTH_ISSUER"},
		{"cron secret in production", map[string]string{"ENV": "production"}, "CRON_SECRET"},
		{"tracking secret in production", map[string]string{"ENV": "production", "CRON_SECRET": "c"}, "TRACKING_SECRET"},
		{"unknown storage", map[string]string{"STORAGE_PROVIDER": "gcs"}, "STORAGE_PROVIDER"},
		{"r2 without bucket", map[string]string{
			"STORAGE_PROVIDER":     "r2",
			"R2_ACCOUNT_ID":        "acct",
			"R2_ACCESS_KEY_ID":     "id",
			"R2_SECRET_ACCESS_KEY": "secret",
		}, "R2_BUCKET_NAME"},
		{"webhook without api key", map[string]string{"STRIPE_WEBHOOK_SECRET": "whsec_1"}, "STRIPE_SECRET_KEY"},
		{"zero rate limit", map[string]string{"API_RATE_LIMIT": "0"}, "API_RATE_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := NewConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "production", "WARN").Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger(&buf, "production", "info").Info("shown", "user_id", "user_a")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "JSON outside development")
	assert.Contains(t, buf.String(), `"service":"mantlz"`)

	buf.Reset()
	NewLogger(&buf, "development", "debug").Debug("dev")
	assert.Contains(t, buf.String(), "level=DEBUG")
}
