package redeem

import (
	"context"

	"pinredeem/internal/domain"
)

// Site is the adapter around the third-party redemption page. It is the only
// place that knows selectors, injected scripts and XHR endpoints, so a markup
// change on the site is fixed there and nowhere else.
type Site interface {
	// Attach binds a driver to an isolated browser session.
	Attach(ctx context.Context) Page
}

// Page drives a single redemption attempt, step by step. A step that cannot
// find an element it needs returns an error wrapping domain.ErrSelectorNotFound.
type Page interface {
	// Open navigates to the redemption page and waits for the PIN input.
	Open(ctx context.Context) error
	// SubmitPIN enters the PIN and asks the site to validate it.
	SubmitPIN(ctx context.Context, pin string) error
	// WaitForDetails gives the player details form time to appear. Not seeing
	// it is not an error; only a dead context is.
	WaitForDetails(ctx context.Context) error
	// Text returns the rendered text of the page body.
	Text(ctx context.Context) (string, error)
	// DetailsFormVisible reports whether the player details form is rendered.
	DetailsFormVisible(ctx context.Context) (bool, error)
	// FillDetails enters the player's name, birth date, id and country and
	// ticks the consent boxes.
	FillDetails(ctx context.Context, req domain.RedemptionRequest) error
	// VerifyAccount asks the site to look up the player id.
	VerifyAccount(ctx context.Context) (AccountCheck, error)
	// Submit sends the final redemption form.
	Submit(ctx context.Context) (Confirmation, error)
}

// AccountCheck is the site's answer to the player id lookup.
type AccountCheck struct {
	// Checked is false when the lookup could not be triggered or observed.
	Checked    bool
	Accepted   bool
	PlayerName string
	Message    string
}

// Confirmation is the response observed for the final submit.
type Confirmation struct {
	Received bool
	Status   int64
	Body     string
}

// OK reports a confirmation response with a non-error status.
func (c Confirmation) OK() bool {
	return c.Received && c.Status < 400
}
