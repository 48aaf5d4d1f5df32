package screens

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/interact"
)

var (
	// ErrLoginFailed means a login that should have succeeded did not reach
	// the catalogue.
	ErrLoginFailed = errors.New("login failed")
	// ErrLoginAccepted means a login that should have been refused was not.
	ErrLoginAccepted = errors.New("login unexpectedly accepted")
	// ErrProductNotFound means the catalogue does not list the product.
	ErrProductNotFound = errors.New("product not found")
	// ErrNotInCart means the product is not in the cart.
	ErrNotInCart = errors.New("product not in cart")
	// ErrCartNotEmpty means a flow that needs an empty cart found items in it.
	ErrCartNotEmpty = errors.New("cart is not empty")
	// ErrOrderIncomplete means checkout ended without a confirmation.
	ErrOrderIncomplete = errors.New("order not confirmed")
)

// Flows strings the screens together into the journeys scenarios are
// written in. All screens share one Actions, so a Flows value belongs to a
// single execution unit.
type Flows struct {
	Login     *Login
	Inventory *Inventory
	Cart      *Cart
	Checkout  *Checkout
	Overview  *Overview
	Complete  *Complete

	ui      interact.Actions
	baseURL string
}

// NewFlows returns the flows of the store at baseURL.
func NewFlows(ui interact.Actions, baseURL string) *Flows {
	return &Flows{
		Login:     NewLogin(ui, baseURL),
		Inventory: NewInventory(ui),
		Cart:      NewCart(ui),
		Checkout:  NewCheckout(ui),
		Overview:  NewOverview(ui),
		Complete:  NewComplete(ui),
		ui:        ui,
		baseURL:   baseURL,
	}
}

// -- Login --

// LoginExpectingSuccess signs in and waits for the catalogue. If it never
// shows, the error carries the banner text when there is one.
func (f *Flows) LoginExpectingSuccess(ctx context.Context, username, password string) error {
	if err := f.Login.Open(ctx); err != nil {
		return err
	}
	if err := f.Login.LoginAs(ctx, username, password); err != nil {
		return err
	}
	if f.Inventory.IsLoaded(ctx) {
		return nil
	}
	if f.Login.ErrorVisible(ctx) {
		if text, err := f.Login.ErrorText(ctx); err == nil {
			return fmt.Errorf("%w as %q: %s", ErrLoginFailed, username, text)
		}
	}
	return fmt.Errorf("%w as %q: catalogue did not load", ErrLoginFailed, username)
}

// LoginExpectingFailure signs in, waits for the error banner and returns its text.
func (f *Flows) LoginExpectingFailure(ctx context.Context, username, password string) (string, error) {
	if err := f.Login.Open(ctx); err != nil {
		return "", err
	}
	if err := f.Login.LoginAs(ctx, username, password); err != nil {
		return "", err
	}
	if err := f.Login.WaitForError(ctx); err != nil {
		var te *browser.TimeoutError
		if errors.As(err, &te) {
			return "", fmt.Errorf("%w as %q: %w", ErrLoginAccepted, username, err)
		}
		return "", err
	}
	return f.Login.ErrorText(ctx)
}

// -- Products --

// AddProduct opens the catalogue and adds the named product to the cart.
func (f *Flows) AddProduct(ctx context.Context, name string) error {
	if err := f.Inventory.Open(ctx, f.baseURL); err != nil {
		return err
	}
	if !f.Inventory.IsDisplayed(ctx, name) {
		return fmt.Errorf("%w: %q", ErrProductNotFound, name)
	}
	return f.Inventory.AddItem(ctx, name)
}

// AddProducts adds each named product in order. Names are trimmed, so a
// comma separated list can be split and passed as is.
func (f *Flows) AddProducts(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := f.AddProduct(ctx, strings.TrimSpace(name)); err != nil {
			return err
		}
	}
	return nil
}

// RemoveProduct opens the catalogue and takes the named product out of the cart.
func (f *Flows) RemoveProduct(ctx context.Context, name string) error {
	if err := f.Inventory.Open(ctx, f.baseURL); err != nil {
		return err
	}
	if !f.Inventory.InCart(ctx, name) {
		return fmt.Errorf("%w: %q", ErrNotInCart, name)
	}
	return f.Inventory.RemoveItem(ctx, name)
}

// RemoveProducts removes each named product in order.
func (f *Flows) RemoveProducts(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := f.RemoveProduct(ctx, strings.TrimSpace(name)); err != nil {
			return err
		}
	}
	return nil
}

// ClearCart removes whichever of the named products are in the cart.
func (f *Flows) ClearCart(ctx context.Context, names []string) error {
	if err := f.Inventory.Open(ctx, f.baseURL); err != nil {
		return err
	}
	for _, name := range names {
		if !f.Inventory.InCart(ctx, name) {
			continue
		}
		if err := f.Inventory.RemoveItem(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// ProductsInCart opens the cart and reports whether every named product is
// listed in it.
func (f *Flows) ProductsInCart(ctx context.Context, names []string) (bool, error) {
	if err := f.Inventory.GoToCart(ctx); err != nil {
		return false, err
	}
	for _, name := range names {
		if !f.Cart.Contains(ctx, name) {
			return false, nil
		}
	}
	return true, nil
}

// -- Checkout --

// BuyItem adds the named product, checks out as cust and waits for the
// confirmation. It starts from whatever screen shows the cart link.
func (f *Flows) BuyItem(ctx context.Context, name string, cust Customer) error {
	if err := f.Inventory.AddItem(ctx, name); err != nil {
		return err
	}
	if err := f.Inventory.GoToCart(ctx); err != nil {
		return err
	}
	if err := f.Cart.ProceedToCheckout(ctx); err != nil {
		return err
	}
	if err := f.Checkout.Fill(ctx, cust); err != nil {
		return err
	}
	if err := f.Checkout.Continue(ctx); err != nil {
		return err
	}
	if f.Checkout.ErrorVisible(ctx) {
		text, _ := f.Checkout.ErrorText(ctx)
		return fmt.Errorf("%w: checkout refused %q: %s", ErrOrderIncomplete, name, text)
	}
	if err := f.Overview.Finish(ctx); err != nil {
		return err
	}
	if err := f.ui.WaitFor(ctx, CompleteHeader, browser.StateVisible); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrOrderIncomplete, name, err)
	}
	return nil
}

// -- Edge cases --

// AttemptEmptyCartCheckout tries to check out with nothing in the cart and
// reports whether the store let it reach the checkout form. It fails with
// ErrCartNotEmpty if the cart holds anything.
func (f *Flows) AttemptEmptyCartCheckout(ctx context.Context) (bool, error) {
	if err := f.Inventory.Open(ctx, f.baseURL); err != nil {
		return false, err
	}
	if err := f.Inventory.GoToCart(ctx); err != nil {
		return false, err
	}
	if !f.Cart.IsEmpty(ctx) {
		return false, ErrCartNotEmpty
	}
	if err := f.Cart.ProceedToCheckout(ctx); err != nil {
		return false, err
	}
	return f.Checkout.IsLoaded(ctx), nil
}

// AddSameProductMultipleTimes tries to add the named product times times and
// returns the cart count afterwards. The store keeps one of each product, so
// starting from an empty cart anything but 1 is a defect.
func (f *Flows) AddSameProductMultipleTimes(ctx context.Context, name string, times int) (int, error) {
	if err := f.Inventory.Open(ctx, f.baseURL); err != nil {
		return 0, err
	}
	for range times {
		if _, err := f.Inventory.AddItemIfAbsent(ctx, name); err != nil {
			return 0, err
		}
	}
	return f.Cart.ItemCount(ctx)
}

// RapidAddRemoveCycles adds and immediately removes the named product cycles
// times, then reports whether the page still shows it in the cart.
func (f *Flows) RapidAddRemoveCycles(ctx context.Context, name string, cycles int) (bool, error) {
	if err := f.Inventory.Open(ctx, f.baseURL); err != nil {
		return false, err
	}
	for range cycles {
		if err := f.Inventory.AddItem(ctx, name); err != nil {
			return false, err
		}
		if err := f.Inventory.RemoveItem(ctx, name); err != nil {
			return false, err
		}
	}
	return f.Inventory.InCart(ctx, name), nil
}

// AttemptCheckoutWithInvalidData checks the named product out as cust and
// returns the validation error the form showed, or "" if it was accepted.
func (f *Flows) AttemptCheckoutWithInvalidData(ctx context.Context, name string, cust Customer) (string, error) {
	if err := f.Inventory.Open(ctx, f.baseURL); err != nil {
		return "", err
	}
	if err := f.Inventory.AddItem(ctx, name); err != nil {
		return "", err
	}
	if err := f.Inventory.GoToCart(ctx); err != nil {
		return "", err
	}
	if err := f.Cart.ProceedToCheckout(ctx); err != nil {
		return "", err
	}
	if err := f.Checkout.Fill(ctx, cust); err != nil {
		return "", err
	}
	if err := f.Checkout.Continue(ctx); err != nil {
		return "", err
	}
	if !f.Checkout.ErrorVisible(ctx) {
		return "", nil
	}
	return f.Checkout.ErrorText(ctx)
}
