// Package app assembles the components shared by the API server and the
// fulfillment worker from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/fulfillment"
	"ms-boxoffice/internal/fulfillment/crm"
	"ms-boxoffice/internal/fulfillment/lock"
	"ms-boxoffice/internal/fulfillment/mailer"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/metrics"
	"ms-boxoffice/internal/order"
	orderdb "ms-boxoffice/internal/order/db"
	"ms-boxoffice/internal/payment"
	"ms-boxoffice/internal/receipt"
	"ms-boxoffice/internal/tickets"
	"ms-boxoffice/internal/tickets/qr"

	"github.com/go-redis/redis/v8"
)

const staffCacheTTL = 10 * time.Minute

func Signer(cfg config.QRConfig) *tickets.Signer {
	return tickets.NewSigner(cfg.Secret, cfg.RequireSignature)
}

func Renderer(cfg config.QRConfig) (*receipt.Renderer, error) {
	return receipt.NewRenderer(qr.NewQRGenerator(Signer(cfg)))
}

// Mailer sends through SMTP when credentials are configured and only logs
// messages otherwise.
func Mailer(cfg config.EmailConfig, log *logger.Logger) mailer.Mailer {
	if cfg.SMTPUsername == "" {
		log.Warn("EMAIL", "SMTP_USERNAME not set, emails are logged instead of sent")
		return mailer.NewLog(log)
	}
	return mailer.NewSMTP(cfg, log)
}

// Payments uses Stripe when a key is configured and the sandbox otherwise.
func Payments(cfg config.StripeConfig, log *logger.Logger) (order.PaymentGateway, error) {
	if cfg.SecretKey == "" {
		log.Warn("PAYMENT", "STRIPE_SECRET_KEY not set, using the sandbox gateway")
		return payment.NewSandbox(log), nil
	}
	gw, err := payment.NewStripeGateway(cfg.SecretKey, cfg.Currency, log)
	if err != nil {
		return nil, err
	}
	return gw, nil
}

func Trigger(cfg *config.Config, orders *orderdb.DB, rdb *redis.Client, log *logger.Logger, m *metrics.Metrics) (*fulfillment.Trigger, error) {
	renderer, err := Renderer(cfg.QR)
	if err != nil {
		return nil, err
	}
	return fulfillment.NewTrigger(
		orders,
		lock.NewRedis(rdb, "boxoffice:"),
		Mailer(cfg.Email, log),
		renderer,
		crm.NewClient(cfg.CRM.WebhookURL, cfg.CRM.Timeout, cfg.CRM.MaxRetries, log),
		log,
		m,
		cfg.Email.AdminAddress,
		cfg.Fulfillment.LockTTL,
	), nil
}

// StaffVerifier accepts gate device tokens and, when an issuer is set, the
// organization's OIDC tokens. Verified tokens are cached in Redis.
func StaffVerifier(ctx context.Context, cfg config.AuthConfig, rdb *redis.Client, log *logger.Logger) (auth.Verifier, error) {
	var chain auth.Chain
	if cfg.JWTSecret != "" {
		chain = append(chain, auth.NewHMACVerifier(cfg.JWTSecret))
	}
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no staff authentication configured: set STAFF_JWT_SECRET or OIDC_ISSUER")
	}
	return auth.NewCachedVerifier(chain, rdb, staffCacheTTL, log), nil
}
