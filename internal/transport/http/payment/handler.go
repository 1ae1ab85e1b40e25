package payment

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/Additional-Code/roomserve/internal/dto"
	"github.com/Additional-Code/roomserve/internal/identity"
	"github.com/Additional-Code/roomserve/internal/presentation/http/response"
	service "github.com/Additional-Code/roomserve/internal/service/payment"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/roomserve/transport/http/payment")

// signatureHeader carries the gateway's payload signature.
const signatureHeader = "Stripe-Signature"

// Handler exposes payment endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a payment Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance. The webhook endpoint is
// authenticated by signature, not by caller identity.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/payments")
	g.POST("/checkout-session", h.createCheckoutSession, identity.Middleware(), identity.Require(identity.RoleClient))
	g.POST("/webhook", h.webhook)
}

func (h *Handler) createCheckoutSession(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.createCheckoutSession")
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	session, err := h.svc.CreateCheckoutSession(ctx, p, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(session).Build()
}

func (h *Handler) webhook(c echo.Context) error {
	b := response.New(c)

	// The raw body is required for signature verification.
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return b.WithError(errorbank.BadRequest("unreadable payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.webhook")
	defer span.End()

	if err := h.svc.HandleWebhook(ctx, payload, c.Request().Header.Get(signatureHeader)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]bool{"received": true}).Build()
}
