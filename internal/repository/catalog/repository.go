package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/cache"
	"github.com/Additional-Code/roomserve/internal/database"
	"github.com/Additional-Code/roomserve/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/roomserve/repository/catalog")

// ErrDishNotFound is returned when a dish is missing.
var ErrDishNotFound = errors.New("dish not found")

// ErrRoomNotFound is returned when a room is missing.
var ErrRoomNotFound = errors.New("room not found")

// Repository resolves menu and room references. The ordering core only
// reads the catalog; CRUD lives behind a separate surface. Dish reads go
// through the cache because the catalog changes rarely and resolution is on
// the hot path of every order.
type Repository struct {
	reader *bun.DB
	cache  cache.Store
	logger *zap.Logger
}

// Params defines dependencies for constructing Repository.
type Params struct {
	fx.In

	Connections *database.Connections
	Cache       cache.Store
	Logger      *zap.Logger
}

// NewRepository wires a catalog repository.
func NewRepository(p Params) *Repository {
	return &Repository{
		reader: p.Connections.Reader,
		cache:  p.Cache,
		logger: p.Logger,
	}
}

// Dish fetches one dish by id, consulting the cache first.
func (r *Repository) Dish(ctx context.Context, id int64) (*entity.Dish, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.Dish", trace.WithAttributes(attribute.Int64("dish.id", id)))
	defer span.End()

	if dish, err := r.dishFromCache(ctx, id); err == nil {
		return dish, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("dish cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	dish := new(entity.Dish)
	err := r.reader.NewSelect().Model(dish).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrDishNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}

	r.storeDishInCache(ctx, dish)
	return dish, nil
}

// DishesByIDs resolves a set of dish ids. Missing dishes are simply absent
// from the result; callers decide whether that is an error.
func (r *Repository) DishesByIDs(ctx context.Context, ids []int64) (map[int64]*entity.Dish, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.DishesByIDs", trace.WithAttributes(attribute.Int("dish.count", len(ids))))
	defer span.End()

	resolved := make(map[int64]*entity.Dish, len(ids))
	if len(ids) == 0 {
		return resolved, nil
	}

	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := resolved[id]; ok {
			continue
		}
		if dish, err := r.dishFromCache(ctx, id); err == nil {
			resolved[id] = dish
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		var dishes []entity.Dish
		err := r.reader.NewSelect().Model(&dishes).Where("id IN (?)", bun.In(missing)).Scan(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "select failed")
			return nil, err
		}
		for i := range dishes {
			dish := dishes[i]
			resolved[dish.ID] = &dish
			r.storeDishInCache(ctx, &dish)
		}
	}

	return resolved, nil
}

// Room fetches one room by id.
func (r *Repository) Room(ctx context.Context, id int64) (*entity.Room, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.Room", trace.WithAttributes(attribute.Int64("room.id", id)))
	defer span.End()

	room := new(entity.Room)
	err := r.reader.NewSelect().Model(room).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrRoomNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return room, nil
}

func (r *Repository) dishCacheKey(id int64) string {
	return fmt.Sprintf("catalog:dish:%d", id)
}

func (r *Repository) dishFromCache(ctx context.Context, id int64) (*entity.Dish, error) {
	if r.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := r.cache.Get(ctx, r.dishCacheKey(id))
	if err != nil {
		return nil, err
	}
	var dish entity.Dish
	if err := json.Unmarshal(bytes, &dish); err != nil {
		return nil, err
	}
	return &dish, nil
}

func (r *Repository) storeDishInCache(ctx context.Context, dish *entity.Dish) {
	if r.cache == nil || dish == nil {
		return
	}
	bytes, err := json.Marshal(dish)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, r.dishCacheKey(dish.ID), bytes, 0); err != nil {
		r.logger.Warn("dish cache write failed", zap.Int64("id", dish.ID), zap.Error(err))
	}
}
