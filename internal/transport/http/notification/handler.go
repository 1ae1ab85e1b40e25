package notification

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/roomserve/internal/dto"
	"github.com/Additional-Code/roomserve/internal/entity"
	"github.com/Additional-Code/roomserve/internal/identity"
	"github.com/Additional-Code/roomserve/internal/presentation/http/response"
	service "github.com/Additional-Code/roomserve/internal/service/notification"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/roomserve/transport/http/notification")

// Handler exposes notification endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a notification Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/notifications", identity.Middleware())
	g.GET("", h.list)
	g.POST("", h.create, identity.Require(identity.RoleAdmin))
	g.PUT("/:id/read", h.markRead)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "notifications.list")
	defer span.End()

	p, err := identity.FromContext(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	// Everyone reads their own feed; admin may inspect any recipient's.
	to := entity.Recipient(p.Role)
	if p.Role == identity.RoleAdmin {
		if requested := c.QueryParam("to"); requested != "" {
			to = entity.Recipient(requested)
		}
	}

	notifications, err := h.svc.List(ctx, to)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(notifications).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateNotificationRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "notifications.create", trace.WithAttributes(
		attribute.String("notification.to", string(payload.To)),
	))
	defer span.End()

	notification, err := h.svc.Create(ctx, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(notification).Build()
}

func (h *Handler) markRead(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "notifications.markRead", trace.WithAttributes(attribute.Int64("notification.id", id)))
	defer span.End()

	notification, err := h.svc.MarkRead(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(notification).Build()
}
