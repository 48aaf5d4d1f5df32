package screens

import (
	"context"

	"github.com/xkilldash9x/uiharness/internal/browser/interact"
	"github.com/xkilldash9x/uiharness/internal/browser/wait"
)

// Cart selectors.
const (
	CheckoutButton = "[data-test='checkout']"
	CartItem       = ".cart_item"
)

// Cart is the shopping cart screen.
type Cart struct {
	ui interact.Actions
}

func NewCart(ui interact.Actions) *Cart {
	return &Cart{ui: ui}
}

// IsLoaded reports whether the checkout button is showing.
func (c *Cart) IsLoaded(ctx context.Context) bool {
	return c.ui.IsVisible(ctx, CheckoutButton)
}

// IsEmpty reports whether no line item is showing.
func (c *Cart) IsEmpty(ctx context.Context) bool {
	return !c.ui.IsVisible(ctx, CartItem)
}

// Contains reports whether the named product is listed in the cart. Cart rows
// carry the same remove button as the catalogue.
func (c *Cart) Contains(ctx context.Context, name string) bool {
	return c.ui.IsVisible(ctx, RemoveButton(name))
}

// ItemCount reads the header badge, which the cart shares with the inventory.
func (c *Cart) ItemCount(ctx context.Context) (int, error) {
	return badgeCount(ctx, c.ui)
}

// ProceedToCheckout starts checkout and waits for the form to load.
func (c *Cart) ProceedToCheckout(ctx context.Context) error {
	if err := c.ui.Click(ctx, CheckoutButton); err != nil {
		return err
	}
	return c.ui.WaitForPage(ctx, wait.NetworkIdle())
}
