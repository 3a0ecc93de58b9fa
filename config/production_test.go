package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", t.TempDir()+"/missing.env")
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoadProductionConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 3, cfg.Queue.Attempts)
	assert.Equal(t, time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, "@every 1m", cfg.Scheduler.Spec)
	assert.Equal(t, "mock", cfg.Email.Provider)
	assert.Equal(t, "mock", cfg.SMS.Provider)
	assert.Equal(t, "mock", cfg.WhatsApp.Provider)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Contains(t, cfg.Database.DSN(), "dbname=dispatch")
}

func TestLoadProductionConfig_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("QUEUE_ATTEMPTS", "5")
	t.Setenv("QUEUE_BACKOFF_BASE", "250ms")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("CACHE_ENABLED", "true")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Queue.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.BackoffBase)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Cache.Enabled)
}

func TestValidateProductionConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "short jwt secret", env: map[string]string{"JWT_SECRET_KEY": "short"}, wantErr: "JWT_SECRET_KEY"},
		{name: "unknown queue backend", env: map[string]string{"QUEUE_BACKEND": "sqs"}, wantErr: "QUEUE_BACKEND"},
		{name: "zero attempts", env: map[string]string{"QUEUE_ATTEMPTS": "0"}, wantErr: "QUEUE_ATTEMPTS"},
		{name: "twilio without credentials", env: map[string]string{"SMS_PROVIDER": "twilio"}, wantErr: "TWILIO_ACCOUNT_SID"},
		{name: "smtp without host", env: map[string]string{"EMAIL_PROVIDER": "smtp"}, wantErr: "EMAIL_HOST"},
		{name: "cloud whatsapp without token", env: map[string]string{"WHATSAPP_PROVIDER": "cloud"}, wantErr: "WHATSAPP_PHONE_NUMBER_ID"},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}, wantErr: "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadProductionConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
