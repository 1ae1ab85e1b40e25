package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	stripeclient "github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/config"
)

// stripeGateway implements Gateway on the Stripe hosted-checkout API.
type stripeGateway struct {
	api    *stripeclient.API
	cfg    config.Payments
	logger *zap.Logger
}

// NewStripe wires the Stripe-backed gateway.
func NewStripe(cfg config.Config, logger *zap.Logger) Gateway {
	api := &stripeclient.API{}
	api.Init(cfg.Payments.SecretKey, nil)
	return &stripeGateway{
		api:    api,
		cfg:    cfg.Payments,
		logger: logger,
	}
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.cfg.Currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *stripeGateway) ParseEvent(payload []byte, signature string) (*CheckoutEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.cfg.WebhookSecret)
	if err != nil {
		g.logger.Warn("webhook signature rejected", zap.Error(err))
		return nil, ErrInvalidSignature
	}

	decoded := &CheckoutEvent{Type: string(event.Type)}
	switch decoded.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		decoded.SessionID = sess.ID
		decoded.AmountTotal = sess.AmountTotal
		decoded.Currency = string(sess.Currency)
		decoded.Metadata = sess.Metadata
		if sess.PaymentIntent != nil {
			decoded.PaymentIntentID = sess.PaymentIntent.ID
		}
	}
	return decoded, nil
}
