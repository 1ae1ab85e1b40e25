package order

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/roomserve/internal/dto"
	"github.com/Additional-Code/roomserve/internal/identity"
	"github.com/Additional-Code/roomserve/internal/presentation/http/response"
	service "github.com/Additional-Code/roomserve/internal/service/order"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/roomserve/transport/http/order")

// Handler exposes order lifecycle endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders", identity.Middleware())
	g.GET("", h.list)
	g.POST("", h.create, identity.Require(identity.RoleClient))
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.updateStatus, identity.Require(identity.RoleAdmin, identity.RoleKitchen))
	g.POST("/:id/confirm", h.confirm, identity.Require(identity.RoleAdmin, identity.RoleClient))
	g.POST("/:id/cancel", h.cancel, identity.Require(identity.RoleAdmin, identity.RoleClient))
	g.PUT("/:id/pay", h.confirmPayment, identity.Require(identity.RoleAdmin))
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	views, err := h.svc.List(ctx, p)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(views).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.Int("order.items", len(payload.Items)),
	))
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	view, err := h.svc.Create(ctx, p, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(view).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	view, err := h.svc.Get(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.UpdateStatusRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status", string(payload.Status)),
	))
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	view, err := h.svc.UpdateStatus(ctx, p, id, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}

func (h *Handler) confirm(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.confirm", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	view, err := h.svc.Confirm(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	view, err := h.svc.Cancel(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}

func (h *Handler) confirmPayment(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.confirmPayment", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	view, err := h.svc.ConfirmPayment(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}

func orderID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}
