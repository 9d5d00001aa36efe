// Package allocation splits an order quantity between a product's near-expiry
// lot and its fresh stock, and prices the split. It never mutates stock
// itself; callers apply Split results inside their own transaction.
package allocation

import (
	"errors"
	"fmt"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// Split is the result of allocating a quantity against one product.
type Split struct {
	QtyFromDiscount int
	QtyFresh        int
	LineTotalCents  int64
}

// Allocate divides qty between the near-expiry lot and fresh stock.
//
// With preferFresh the whole quantity comes from fresh stock at the base
// price and the near-expiry lot is left alone. Otherwise the near-expiry lot
// is drained first at the discounted unit price and the remainder comes from
// fresh stock at the base price.
func Allocate(qty, stock, nearExpiry int, preferFresh bool, baseCents, discountCents int64) (Split, error) {
	if qty <= 0 {
		return Split{}, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	if nearExpiry < 0 || nearExpiry > stock {
		return Split{}, fmt.Errorf("invalid lot state: stock %d, near-expiry %d", stock, nearExpiry)
	}
	if preferFresh {
		fresh := stock - nearExpiry
		if qty > fresh {
			return Split{}, fmt.Errorf("%w: insufficient fresh stock (want %d, have %d)", ErrInsufficientStock, qty, fresh)
		}
		return Split{
			QtyFromDiscount: 0,
			QtyFresh:        qty,
			LineTotalCents:  int64(qty) * baseCents,
		}, nil
	}
	if qty > stock {
		return Split{}, fmt.Errorf("%w: want %d, have %d", ErrInsufficientStock, qty, stock)
	}
	fromDiscount := qty
	if nearExpiry < fromDiscount {
		fromDiscount = nearExpiry
	}
	if discountCents == baseCents {
		// No price advantage, leave the tagged lot alone.
		fromDiscount = 0
	}
	fresh := qty - fromDiscount
	total := int64(fromDiscount)*discountCents + int64(fresh)*baseCents
	return Split{
		QtyFromDiscount: fromDiscount,
		QtyFresh:        fresh,
		LineTotalCents:  total,
	}, nil
}

// Apply returns the stock counters after committing a split for qty units.
// The near-expiry counter never exceeds the remaining stock.
func Apply(stock, nearExpiry, qty int, s Split) (newStock, newNearExpiry int) {
	newStock = stock - qty
	newNearExpiry = nearExpiry - s.QtyFromDiscount
	if newNearExpiry > newStock {
		newNearExpiry = newStock
	}
	return newStock, newNearExpiry
}
