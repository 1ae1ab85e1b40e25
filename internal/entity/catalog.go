package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// DishExtra is an optional addition a dish offers, with its catalog price.
type DishExtra struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Dish is a menu entry. Managed by the menu CRUD surface; the ordering core
// only reads it.
type Dish struct {
	bun.BaseModel `bun:"table:dishes"`

	ID          int64       `bun:",pk,autoincrement"`
	Name        string      `bun:"name"`
	Price       float64     `bun:"price"`
	CategoryID  int64       `bun:"category_id"`
	Description string      `bun:"description"`
	Image       string      `bun:"image"`
	Ingredients []string    `bun:"ingredients,type:jsonb"`
	Extras      []DishExtra `bun:"extras,type:jsonb"`
	CreatedAt   time.Time   `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time   `bun:"updated_at,nullzero"`
}

// ExtraPrice returns the catalog price for a named extra, if the dish
// defines it.
func (d *Dish) ExtraPrice(name string) (float64, bool) {
	for _, extra := range d.Extras {
		if extra.Name == name {
			return extra.Price, true
		}
	}
	return 0, false
}

// Room is an orderable room. Managed by the room CRUD surface.
type Room struct {
	bun.BaseModel `bun:"table:rooms"`

	ID          int64     `bun:",pk,autoincrement"`
	Num         string    `bun:"num"`
	AccessCode  string    `bun:"access_code"`
	Location    string    `bun:"location"`
	Capacity    int       `bun:"capacity"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero"`
}

// Category groups dishes on the menu.
type Category struct {
	bun.BaseModel `bun:"table:categories"`

	ID          int64     `bun:",pk,autoincrement"`
	Name        string    `bun:"name"`
	Description string    `bun:"description"`
	Image       string    `bun:"image"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero"`
}
