package entity

import "github.com/uptrace/bun"

// CounterOrderNumber is the counter backing order numbering. Numbers are
// globally monotonic; per-day reset is a noted future requirement.
const CounterOrderNumber = "orderNumber"

// Counter is a named, atomically incremented sequence source.
type Counter struct {
	bun.BaseModel `bun:"table:counters"`

	Name  string `bun:"name,pk"`
	Value int64  `bun:"value"`
}
