package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("PAYMENT_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 20*time.Second, cfg.Stripe.PaymentTimeout)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.False(t, cfg.QR.RequireSignature)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("PAYMENT_TIMEOUT", "5s")
	t.Setenv("QR_REQUIRE_SIGNATURE", "true")
	t.Setenv("SMTP_PORT", "not-a-number")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Stripe.PaymentTimeout)
	assert.True(t, cfg.QR.RequireSignature)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
}
