package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/roomserve/internal/broadcast"
	"github.com/Additional-Code/roomserve/internal/cache"
	"github.com/Additional-Code/roomserve/internal/config"
	"github.com/Additional-Code/roomserve/internal/database"
	"github.com/Additional-Code/roomserve/internal/gateway"
	"github.com/Additional-Code/roomserve/internal/logger"
	"github.com/Additional-Code/roomserve/internal/messaging"
	"github.com/Additional-Code/roomserve/internal/observability"
	repositorycatalog "github.com/Additional-Code/roomserve/internal/repository/catalog"
	repositorycounter "github.com/Additional-Code/roomserve/internal/repository/counter"
	repositorynotification "github.com/Additional-Code/roomserve/internal/repository/notification"
	repositoryorder "github.com/Additional-Code/roomserve/internal/repository/order"
	repositorypayment "github.com/Additional-Code/roomserve/internal/repository/payment"
	"github.com/Additional-Code/roomserve/internal/scheduler"
	grpcserver "github.com/Additional-Code/roomserve/internal/server/grpc"
	httpserver "github.com/Additional-Code/roomserve/internal/server/http"
	servicenotification "github.com/Additional-Code/roomserve/internal/service/notification"
	serviceorder "github.com/Additional-Code/roomserve/internal/service/order"
	servicepayment "github.com/Additional-Code/roomserve/internal/service/payment"
	"github.com/Additional-Code/roomserve/internal/sweeper"
	transporthttp "github.com/Additional-Code/roomserve/internal/transport/http"
	"github.com/Additional-Code/roomserve/internal/worker"
	workerrealtime "github.com/Additional-Code/roomserve/internal/worker/realtime"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	broadcast.Module,
	scheduler.Module,
	gateway.Module,
	repositorycounter.Module,
	repositorycatalog.Module,
	repositoryorder.Module,
	repositorypayment.Module,
	repositorynotification.Module,
	servicenotification.Module,
	serviceorder.Module,
	servicepayment.Module,
)

// HTTP wires the request-serving process: both servers, the transport
// handlers, and the visibility sweeper (its redis lock keeps one active
// sweeper per deployment even when several replicas run).
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
	sweeper.Module,
)

// Worker exposes background event consumption.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerrealtime.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
