package screens

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/interact"
	"github.com/xkilldash9x/uiharness/internal/browser/wait"
)

// Inventory selectors.
const (
	InventoryContainer = "[data-test='inventory-container']"
	CartLink           = ".shopping_cart_link"
	CartBadge          = ".shopping_cart_badge"
)

// itemSlug turns a product name into the suffix the store uses in its
// data-test ids: "Sauce Labs Backpack" becomes "sauce-labs-backpack".
func itemSlug(name string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(name), "-"))
	return strings.ReplaceAll(slug, `"`, `\"`)
}

// AddButton is the add-to-cart button of the named product.
func AddButton(name string) string {
	return fmt.Sprintf(`[data-test="add-to-cart-%s"]`, itemSlug(name))
}

// RemoveButton is the remove button the named product shows once in the cart.
func RemoveButton(name string) string {
	return fmt.Sprintf(`[data-test="remove-%s"]`, itemSlug(name))
}

// Inventory is the product catalogue shown after login.
type Inventory struct {
	ui interact.Actions
}

// NewInventory returns the inventory screen.
func NewInventory(ui interact.Actions) *Inventory {
	return &Inventory{ui: ui}
}

// Open navigates straight to the catalogue of the store at baseURL. The
// session must already be signed in.
func (i *Inventory) Open(ctx context.Context, baseURL string) error {
	if err := i.ui.Navigate(ctx, inventoryURL(baseURL)); err != nil {
		return err
	}
	return i.ui.WaitFor(ctx, InventoryContainer, browser.StateVisible)
}

func inventoryURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/inventory.html"
}

// IsLoaded waits for the product list and reports whether it is showing.
func (i *Inventory) IsLoaded(ctx context.Context) bool {
	if err := i.ui.WaitFor(ctx, InventoryContainer, browser.StateVisible); err != nil {
		return false
	}
	return i.ui.IsVisible(ctx, InventoryContainer)
}

// AddItem puts the named product in the cart. A product that is already in
// the cart is left alone.
func (i *Inventory) AddItem(ctx context.Context, name string) error {
	_, err := i.AddItemIfAbsent(ctx, name)
	return err
}

// AddItemIfAbsent adds the named product unless its remove button is already
// showing, and reports whether it clicked.
func (i *Inventory) AddItemIfAbsent(ctx context.Context, name string) (bool, error) {
	if i.ui.IsVisible(ctx, RemoveButton(name)) {
		return false, nil
	}
	if err := i.ui.Click(ctx, AddButton(name)); err != nil {
		return false, err
	}
	return true, nil
}

// IsDisplayed reports whether the named product is listed, in the cart or not.
func (i *Inventory) IsDisplayed(ctx context.Context, name string) bool {
	return i.ui.IsVisible(ctx, AddButton(name)) || i.ui.IsVisible(ctx, RemoveButton(name))
}

// InCart reports whether the named product shows its remove button.
func (i *Inventory) InCart(ctx context.Context, name string) bool {
	return i.ui.IsVisible(ctx, RemoveButton(name))
}

// RemoveItem takes the named product out of the cart.
func (i *Inventory) RemoveItem(ctx context.Context, name string) error {
	return i.ui.Click(ctx, RemoveButton(name))
}

// GoToCart opens the cart and waits for the network to settle.
func (i *Inventory) GoToCart(ctx context.Context) error {
	if err := i.ui.Click(ctx, CartLink); err != nil {
		return err
	}
	return i.ui.WaitForPage(ctx, wait.NetworkIdle())
}

// CartCount reads the cart badge. No badge means an empty cart.
func (i *Inventory) CartCount(ctx context.Context) (int, error) {
	return badgeCount(ctx, i.ui)
}

func badgeCount(ctx context.Context, ui interact.Actions) (int, error) {
	if !ui.IsVisible(ctx, CartBadge) {
		return 0, nil
	}
	text, err := ui.ReadText(ctx, CartBadge)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("cart badge %q: %w", text, err)
	}
	return n, nil
}
