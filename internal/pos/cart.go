// Package pos builds sales and turns them into receipts, online or offline.
package pos

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xelth-com/eckpos/internal/models"
)

var (
	ErrInsufficientStock = errors.New("not enough stock available")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrNotInCart         = errors.New("product not in cart")
)

// Line is one product in the cart
type Line struct {
	Product  models.Product
	Quantity int
}

// Total returns price * quantity
func (l Line) Total() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the sale being built at the counter. Not safe for concurrent use.
type Cart struct {
	lines []Line
}

func NewCart() *Cart {
	return &Cart{}
}

// Add puts qty more of product into the cart. The known stock level, when the
// product carries one, caps the total quantity.
func (c *Cart) Add(product models.Product, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.lines {
		if c.lines[i].Product.ID == product.ID {
			next := c.lines[i].Quantity + qty
			if err := checkStock(product, next); err != nil {
				return err
			}
			c.lines[i].Quantity = next
			c.lines[i].Product = product
			return nil
		}
	}
	if err := checkStock(product, qty); err != nil {
		return err
	}
	c.lines = append(c.lines, Line{Product: product, Quantity: qty})
	return nil
}

// SetQuantity changes a line. Zero or less removes it.
func (c *Cart) SetQuantity(productID int64, qty int) error {
	for i := range c.lines {
		if c.lines[i].Product.ID != productID {
			continue
		}
		if qty <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
		if err := checkStock(c.lines[i].Product, qty); err != nil {
			return err
		}
		c.lines[i].Quantity = qty
		return nil
	}
	return ErrNotInCart
}

// Remove drops a product from the cart. Reports whether it was there.
func (c *Cart) Remove(productID int64) bool {
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
	}
	return false
}

// Lines returns a copy of the cart lines
func (c *Cart) Lines() []Line {
	return append([]Line(nil), c.lines...)
}

// Items returns the cart as order lines
func (c *Cart) Items() []models.OrderItem {
	items := make([]models.OrderItem, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, models.OrderItem{
			ProductID: l.Product.ID,
			SKU:       l.Product.SKU,
			Name:      l.Product.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.Product.Price,
		})
	}
	return items
}

func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

func (c *Cart) Clear()        { c.lines = nil }
func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }
func (c *Cart) Len() int      { return len(c.lines) }

func checkStock(p models.Product, qty int) error {
	if p.QuantityOnHand != nil && qty > *p.QuantityOnHand {
		return fmt.Errorf("%w: %s has %d, wanted %d", ErrInsufficientStock, p.Name, *p.QuantityOnHand, qty)
	}
	return nil
}
