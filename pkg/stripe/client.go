package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/bidhaus/bidhaus-backend/pkg/config"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
	errLoggerRequired   = errors.New("stripe logger is required")
)

// PaymentLinkParams describe the payment request created for a settlement order.
type PaymentLinkParams struct {
	AmountCents    int64
	Currency       string
	Description    string
	Reference      string
	ExpiresAt      *time.Time
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentLink is the gateway-side payment request handle stored on orders.
type PaymentLink struct {
	ID          string
	CheckoutURL string
	Reference   string
	Status      PaymentLinkStatus
}

// PaymentLinkStatus is the normalized gateway status of a payment link.
type PaymentLinkStatus string

const (
	PaymentLinkStatusPending PaymentLinkStatus = "pending"
	PaymentLinkStatusPaid    PaymentLinkStatus = "paid"
	PaymentLinkStatusExpired PaymentLinkStatus = "expired"
)

// Client wraps Stripe's API with centralized auth, logging, and error mapping.
// Payment requests are modeled as Checkout Sessions, which give us a hosted
// checkout URL per order plus paid/expired webhooks.
type Client struct {
	environment   string
	signingSecret string
	successURL    string
	cancelURL     string
	currency      string
	logger        *logger.Logger
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	c := &Client{
		environment:   env,
		signingSecret: signingSecret,
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		cancelURL:     strings.TrimSpace(cfg.CancelURL),
		currency:      strings.ToLower(strings.TrimSpace(cfg.CurrencyCode)),
		logger:        logg,
	}

	logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	return c, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// NewIdempotencyKey returns a unique key for gateway operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "bh"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// CreatePaymentLink creates a payment request for the given amount and returns
// the link handle the caller persists on the order.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = c.currency
	}

	req := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(params.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(params.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Description),
					},
				},
			},
		},
	}
	req.Context = ctx
	if c.successURL != "" {
		req.SuccessURL = stripe.String(c.successURL)
	}
	if c.cancelURL != "" {
		req.CancelURL = stripe.String(c.cancelURL)
	}
	if params.ExpiresAt != nil {
		req.ExpiresAt = stripe.Int64(params.ExpiresAt.Unix())
	}
	if len(params.Metadata) > 0 {
		req.Metadata = params.Metadata
	}
	key := params.IdempotencyKey
	if key == "" {
		key = c.NewIdempotencyKey("paylink.create")
	}
	req.SetIdempotencyKey(key)

	c.log(ctx, "request", "create_payment_link", map[string]any{
		"reference": params.Reference,
		"amount":    params.AmountCents,
	})

	sess, err := session.New(req)
	if err != nil {
		c.log(ctx, "error", "create_payment_link", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create payment link")
	}

	link := linkFromSession(sess)
	c.log(ctx, "response", "create_payment_link", map[string]any{
		"payment_link_id": link.ID,
		"status":          string(link.Status),
	})
	return link, nil
}

// GetPaymentLink fetches the current gateway status of a payment link.
func (c *Client) GetPaymentLink(ctx context.Context, id string) (*PaymentLink, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment link id required")
	}

	req := &stripe.CheckoutSessionParams{}
	req.Context = ctx

	c.log(ctx, "request", "get_payment_link", map[string]any{"payment_link_id": id})

	sess, err := session.Get(id, req)
	if err != nil {
		c.log(ctx, "error", "get_payment_link", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "get payment link")
	}
	return linkFromSession(sess), nil
}

// CancelPaymentLink expires an open payment link so the stale winner can no
// longer pay against it. Already-expired links are treated as success.
func (c *Client) CancelPaymentLink(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment link id required")
	}

	req := &stripe.CheckoutSessionExpireParams{}
	req.Context = ctx

	c.log(ctx, "request", "cancel_payment_link", map[string]any{"payment_link_id": id})

	if _, err := session.Expire(id, req); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 400 {
			// Expiring a session that is no longer open is a no-op for us.
			c.log(ctx, "response", "cancel_payment_link", map[string]any{"already_closed": true})
			return nil
		}
		c.log(ctx, "error", "cancel_payment_link", map[string]any{"error": err.Error()})
		return c.mapStripeError(err, "cancel payment link")
	}
	return nil
}

func linkFromSession(sess *stripe.CheckoutSession) *PaymentLink {
	if sess == nil {
		return nil
	}
	return &PaymentLink{
		ID:          sess.ID,
		CheckoutURL: sess.URL,
		Reference:   sess.ClientReferenceID,
		Status:      statusFromSession(sess),
	}
}

func statusFromSession(sess *stripe.CheckoutSession) PaymentLinkStatus {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return PaymentLinkStatusPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return PaymentLinkStatusExpired
	default:
		return PaymentLinkStatusPending
	}
}

func (c *Client) mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 404 {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op)
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	merged := map[string]any{"gateway_op": op, "phase": phase}
	for k, v := range fields {
		merged[k] = v
	}
	logCtx := c.logger.WithFields(ctx, merged)
	c.logger.Info(logCtx, "stripe "+op)
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
