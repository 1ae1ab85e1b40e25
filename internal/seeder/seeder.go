package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/database"
	"github.com/Additional-Code/roomserve/internal/entity"
)

// Module provides the seeder.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Catalog seeds rooms, categories, and dishes if they are missing.
func (s *Seeder) Catalog(ctx context.Context) error {
	now := time.Now().UTC()

	rooms := []entity.Room{
		{Num: "101", AccessCode: "R101", Location: "first floor", Capacity: 2, CreatedAt: now, UpdatedAt: now},
		{Num: "102", AccessCode: "R102", Location: "first floor", Capacity: 2, CreatedAt: now, UpdatedAt: now},
		{Num: "201", AccessCode: "R201", Location: "second floor", Capacity: 4, CreatedAt: now, UpdatedAt: now},
	}
	for _, sample := range rooms {
		room := sample
		_, err := s.db.NewInsert().Model(&room).
			On("CONFLICT (num) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	categories := []entity.Category{
		{Name: "Mains", Description: "Hot dishes", CreatedAt: now, UpdatedAt: now},
		{Name: "Snacks", Description: "Quick bites", CreatedAt: now, UpdatedAt: now},
		{Name: "Drinks", Description: "Hot and cold drinks", CreatedAt: now, UpdatedAt: now},
	}
	for _, sample := range categories {
		category := sample
		_, err := s.db.NewInsert().Model(&category).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	dishes := []entity.Dish{
		{
			Name:        "Chicken Tajine",
			Price:       50,
			CategoryID:  1,
			Description: "Slow-cooked with olives and lemon",
			Ingredients: []string{"chicken", "olives", "preserved lemon"},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Name:        "Beef Burger",
			Price:       30,
			CategoryID:  2,
			Description: "House burger with fries",
			Ingredients: []string{"beef", "bun", "lettuce", "tomato"},
			Extras:      []entity.DishExtra{{Name: "cheese", Price: 5}, {Name: "bacon", Price: 8}},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Name:        "Mint Tea",
			Price:       10,
			CategoryID:  3,
			Description: "Fresh mint, served sweet",
			Ingredients: []string{"green tea", "mint", "sugar"},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	for _, sample := range dishes {
		dish := sample
		_, err := s.db.NewInsert().Model(&dish).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded catalog",
			zap.Int("rooms", len(rooms)),
			zap.Int("categories", len(categories)),
			zap.Int("dishes", len(dishes)),
		)
	}
	return nil
}
