// Package pricing computes cart totals. It is a pure function of the cart
// and the resolved dish catalog, used identically at order creation and at
// checkout-session creation.
package pricing

import (
	"errors"
	"fmt"

	"github.com/Additional-Code/roomserve/internal/entity"
)

// ErrUnknownDish is returned when a line item references a dish that does
// not resolve in the catalog.
var ErrUnknownDish = errors.New("unknown dish")

// Total prices the cart: dish price times quantity, plus each requested
// extra. Extras defined by the dish are priced from the catalog; unmatched
// extras fall back to the client-submitted price (a known trust boundary).
func Total(items []entity.LineItem, dishes map[int64]*entity.Dish) (float64, error) {
	var total float64

	for _, item := range items {
		dish, ok := dishes[item.DishID]
		if !ok || dish == nil {
			return 0, fmt.Errorf("%w: %d", ErrUnknownDish, item.DishID)
		}

		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		total += dish.Price * float64(qty)

		for _, extra := range item.AddedExtras {
			extraQty := extra.Quantity
			if extraQty < 1 {
				extraQty = 1
			}
			if price, ok := dish.ExtraPrice(extra.Name); ok {
				total += price * float64(extraQty)
			} else {
				total += extra.UnitPrice * float64(extraQty)
			}
		}
	}

	return total, nil
}
