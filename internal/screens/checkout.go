package screens

import (
	"context"
	"strings"

	"github.com/xkilldash9x/uiharness/internal/browser/interact"
	"github.com/xkilldash9x/uiharness/internal/browser/wait"
)

// Checkout selectors.
const (
	FirstNameInput  = "[data-test='firstName']"
	LastNameInput   = "[data-test='lastName']"
	PostalCodeInput = "[data-test='postalCode']"
	ContinueButton  = "[data-test='continue']"
	CancelButton    = "[data-test='cancel']"
	CheckoutError   = "[data-test='error']"
	FinishButton    = "[data-test='finish']"
	CompleteHeader  = "[data-test='complete-header']"
)

// checkoutStep is the URL fragment shared by both checkout steps.
const checkoutStep = "checkout-step"

// Customer is what the checkout form asks for.
type Customer struct {
	FirstName  string
	LastName   string
	PostalCode string
}

// Filled reports whether every field has a value.
func (c Customer) Filled() bool {
	return c.FirstName != "" && c.LastName != "" && c.PostalCode != ""
}

// Checkout is the customer information form, the first checkout step.
type Checkout struct {
	ui interact.Actions
}

func NewCheckout(ui interact.Actions) *Checkout {
	return &Checkout{ui: ui}
}

// IsLoaded reports whether the three fields and the continue button are showing.
func (c *Checkout) IsLoaded(ctx context.Context) bool {
	for _, sel := range []string{FirstNameInput, LastNameInput, PostalCodeInput, ContinueButton} {
		if !c.ui.IsVisible(ctx, sel) {
			return false
		}
	}
	return true
}

// Fill types the customer into the form.
func (c *Checkout) Fill(ctx context.Context, cust Customer) error {
	if err := c.ui.Type(ctx, FirstNameInput, cust.FirstName); err != nil {
		return err
	}
	if err := c.ui.Type(ctx, LastNameInput, cust.LastName); err != nil {
		return err
	}
	return c.ui.Type(ctx, PostalCodeInput, cust.PostalCode)
}

// Values reads the form back as currently shown.
func (c *Checkout) Values(ctx context.Context) (Customer, error) {
	var cust Customer
	for _, f := range []struct {
		sel string
		dst *string
	}{
		{FirstNameInput, &cust.FirstName},
		{LastNameInput, &cust.LastName},
		{PostalCodeInput, &cust.PostalCode},
	} {
		v, err := c.ui.ReadValue(ctx, f.sel)
		if err != nil {
			return Customer{}, err
		}
		*f.dst = v
	}
	return cust, nil
}

// IsFilled reports whether every field currently holds a value.
func (c *Checkout) IsFilled(ctx context.Context) (bool, error) {
	cust, err := c.Values(ctx)
	if err != nil {
		return false, err
	}
	return cust.Filled(), nil
}

// Continue submits the form and waits for the network to settle. Validation
// errors are not failures here; check ErrorVisible.
func (c *Checkout) Continue(ctx context.Context) error {
	return c.clickAndSettle(ctx, ContinueButton)
}

// Cancel leaves checkout and returns to the cart.
func (c *Checkout) Cancel(ctx context.Context) error {
	return c.clickAndSettle(ctx, CancelButton)
}

// ContinueWithEmptyFields clears the form and submits it, to trigger validation.
func (c *Checkout) ContinueWithEmptyFields(ctx context.Context) error {
	if err := c.Fill(ctx, Customer{}); err != nil {
		return err
	}
	return c.ui.Click(ctx, ContinueButton)
}

// Attempt submits the form and reports whether the browser is still inside
// checkout afterwards, which it is unless the store bounced the order.
func (c *Checkout) Attempt(ctx context.Context) (bool, error) {
	if err := c.Continue(ctx); err != nil {
		return false, err
	}
	return strings.Contains(c.ui.URL(), checkoutStep), nil
}

// ErrorVisible reports whether the validation banner is showing.
func (c *Checkout) ErrorVisible(ctx context.Context) bool {
	return c.ui.IsVisible(ctx, CheckoutError)
}

// ErrorText returns the validation banner text.
func (c *Checkout) ErrorText(ctx context.Context) (string, error) {
	return c.ui.ReadText(ctx, CheckoutError)
}

// HasError reports whether the banner is showing and contains substr.
func (c *Checkout) HasError(ctx context.Context, substr string) bool {
	if !c.ErrorVisible(ctx) {
		return false
	}
	text, err := c.ErrorText(ctx)
	return err == nil && strings.Contains(text, substr)
}

// HasEmptyCartError reports whether the banner complains about the cart.
func (c *Checkout) HasEmptyCartError(ctx context.Context) bool {
	if !c.ErrorVisible(ctx) {
		return false
	}
	text, err := c.ErrorText(ctx)
	return err == nil && strings.Contains(strings.ToLower(text), "cart")
}

func (c *Checkout) clickAndSettle(ctx context.Context, selector string) error {
	if err := c.ui.Click(ctx, selector); err != nil {
		return err
	}
	return c.ui.WaitForPage(ctx, wait.NetworkIdle())
}

// Overview is the order summary, the second checkout step.
type Overview struct {
	ui interact.Actions
}

func NewOverview(ui interact.Actions) *Overview {
	return &Overview{ui: ui}
}

// IsLoaded reports whether the finish button is showing.
func (o *Overview) IsLoaded(ctx context.Context) bool {
	return o.ui.IsVisible(ctx, FinishButton)
}

// Finish places the order and waits for the confirmation to load.
func (o *Overview) Finish(ctx context.Context) error {
	if err := o.ui.Click(ctx, FinishButton); err != nil {
		return err
	}
	return o.ui.WaitForPage(ctx, wait.NetworkIdle())
}

// Complete is the order confirmation.
type Complete struct {
	ui interact.Actions
}

func NewComplete(ui interact.Actions) *Complete {
	return &Complete{ui: ui}
}

// IsLoaded reports whether the confirmation header is showing.
func (c *Complete) IsLoaded(ctx context.Context) bool {
	return c.ui.IsVisible(ctx, CompleteHeader)
}

// ConfirmationText returns the confirmation header, "Thank you for your order!"
// on the reference store.
func (c *Complete) ConfirmationText(ctx context.Context) (string, error) {
	return c.ui.ReadText(ctx, CompleteHeader)
}
