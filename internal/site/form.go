package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"pinredeem/internal/config"
	"pinredeem/internal/domain"
	"pinredeem/internal/infra/logging"
	"pinredeem/internal/redeem"
)

const (
	pollInterval       = 100 * time.Millisecond
	validateEnablePoll = 40
	countryOptionsPoll = 15
	detailsGrace       = 500 * time.Millisecond
)

// Form drives the redemption form of the configured site through chromedp.
type Form struct {
	cfg     config.SiteConfig
	blocker blocker
}

// NewForm returns a site adapter for cfg.
func NewForm(cfg config.SiteConfig) *Form {
	return &Form{
		cfg:     cfg,
		blocker: newBlocker(cfg.BlockedResourceTypes, cfg.BlockedDomains),
	}
}

// Attach starts watching the session's tab. ctx must carry a chromedp context.
func (f *Form) Attach(ctx context.Context) redeem.Page {
	p := &page{cfg: f.cfg, w: newWatcher(ctx, f.blocker)}
	chromedp.ListenTarget(ctx, p.w.handle)
	return p
}

type page struct {
	cfg config.SiteConfig
	w   *watcher
}

func (p *page) Open(ctx context.Context) error {
	setup := []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.cfg.Locale}),
		emulation.SetDeviceMetricsOverride(p.cfg.ViewportWidth, p.cfg.ViewportHeight, 1, false),
		emulation.SetLocaleOverride().WithLocale(p.cfg.Locale),
	}
	if p.w.blocker.enabled() {
		setup = append(setup, fetch.Enable())
	}
	if err := chromedp.Run(ctx, setup...); err != nil {
		return fmt.Errorf("prepare tab: %w", err)
	}

	start := time.Now()
	nctx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.Navigation)
	defer cancel()
	if err := chromedp.Run(nctx, chromedp.Navigate(p.cfg.URL)); err != nil {
		return fmt.Errorf("navigate to %s: %w", p.cfg.URL, err)
	}
	if err := waitIn(ctx, nctx, p.cfg.Selectors.PIN, chromedp.WaitVisible(p.cfg.Selectors.PIN, chromedp.ByQuery)); err != nil {
		return err
	}
	logging.Info("Redemption page ready", "url", p.cfg.URL, "elapsed", time.Since(start))
	return nil
}

func (p *page) SubmitPIN(ctx context.Context, pin string) error {
	sel := p.cfg.Selectors

	var found bool
	if err := eval(ctx, &found, fillPINJS, sel.PIN, pin); err != nil {
		return fmt.Errorf("fill pin: %w", err)
	}
	if !found {
		return notFound(sel.PIN)
	}
	if err := p.waitEnabled(ctx, sel.ValidateButton); err != nil {
		return err
	}

	exp := p.w.expect(urlMatcher(p.cfg.Endpoints.Validate, p.cfg.Endpoints.Account))
	defer p.w.forget(exp)
	if err := click(ctx, sel.ValidateButton); err != nil {
		return err
	}

	resp, err := exp.wait(ctx, p.cfg.Timeouts.Response)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		logging.Warn("PIN validation response not observed", "error", err)
	case resp.Status >= 400:
		logging.Warn("PIN validation rejected", "status", resp.Status, "body", clip(resp.Body, 300))
	default:
		logging.Info("PIN validation answered", "status", resp.Status)
	}
	return nil
}

// waitEnabled polls until sel is enabled. A button that stays disabled is
// clicked anyway since the click script enables it.
func (p *page) waitEnabled(ctx context.Context, sel string) error {
	var st elementState
	for i := 0; i < validateEnablePoll; i++ {
		if err := eval(ctx, &st, stateJS, sel); err != nil {
			return fmt.Errorf("inspect %s: %w", sel, err)
		}
		if st.Enabled {
			return nil
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
	if !st.Found {
		return notFound(sel)
	}
	logging.Debug("Button still disabled, clicking anyway", "selector", sel)
	return nil
}

func (p *page) WaitForDetails(ctx context.Context) error {
	sel := p.cfg.Selectors
	t := p.cfg.Timeouts

	err := within(ctx, t.Details, sel.AccountID, chromedp.WaitReady(sel.AccountID, chromedp.ByQuery))
	if err == nil || !errors.Is(err, domain.ErrSelectorNotFound) {
		return err
	}
	err = within(ctx, t.Details/2, sel.DetailsCard, chromedp.WaitVisible(sel.DetailsCard, chromedp.ByQuery))
	if err == nil || !errors.Is(err, domain.ErrSelectorNotFound) {
		return err
	}
	return sleep(ctx, detailsGrace)
}

func (p *page) Text(ctx context.Context) (string, error) {
	var text string
	if err := chromedp.Run(ctx, chromedp.Evaluate(bodyTextJS, &text)); err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}
	return text, nil
}

func (p *page) DetailsFormVisible(ctx context.Context) (bool, error) {
	var shown bool
	if err := eval(ctx, &shown, detailsShownJS, p.cfg.Selectors.DetailsCard, p.cfg.Selectors.AccountID); err != nil {
		return false, fmt.Errorf("inspect details form: %w", err)
	}
	return shown, nil
}

func (p *page) FillDetails(ctx context.Context, req domain.RedemptionRequest) error {
	sel := p.cfg.Selectors
	country := strings.ToLower(strings.TrimSpace(req.Country))

	var res fillResult
	err := eval(ctx, &res, fillDetailsJS, fillArgs{
		Name:       req.FullName,
		Born:       req.BirthDate,
		PlayerID:   req.PlayerID,
		Country:    country,
		NameSel:    sel.Name,
		BornSel:    sel.BirthDate,
		AccountSel: sel.AccountID,
		CountrySel: sel.Country,
		Checkboxes: sel.Checkboxes,
		Buttons:    strings.Join([]string{sel.VerifyButton, sel.RedeemButton}, ", "),
	})
	if err != nil {
		return fmt.Errorf("fill details: %w", err)
	}
	if !res.Fields {
		return notFound(strings.Join([]string{sel.Name, sel.BirthDate, sel.AccountID}, ", "))
	}
	logging.Debug("Details filled", "country_selected", res.Country)

	if !res.Country {
		if err := p.selectCountryLate(ctx, country); err != nil {
			return err
		}
	}

	var missed int
	if err := eval(ctx, &missed, checkAllJS, sel.Checkboxes); err != nil {
		return fmt.Errorf("tick checkboxes: %w", err)
	}
	if missed > 0 {
		logging.Warn("Some checkboxes stayed unchecked", "count", missed)
	}
	return nil
}

// selectCountryLate waits for options loaded after the form appeared. A
// select that never fills up is left alone; the site reports it on submit.
func (p *page) selectCountryLate(ctx context.Context, country string) error {
	sel := p.cfg.Selectors.Country
	var value string
	for i := 0; i < countryOptionsPoll && value == ""; i++ {
		if err := eval(ctx, &value, countryValueJS, sel, country); err != nil {
			return fmt.Errorf("read country options: %w", err)
		}
		if value == "" {
			if err := sleep(ctx, pollInterval); err != nil {
				return err
			}
		}
	}
	if value == "" {
		logging.Warn("Country options never loaded", "selector", sel)
		return nil
	}
	var ok bool
	if err := eval(ctx, &ok, selectValueJS, sel, value); err != nil {
		return fmt.Errorf("select country: %w", err)
	}
	logging.Info("Country selected after options loaded", "value", value)
	return nil
}

func (p *page) VerifyAccount(ctx context.Context) (redeem.AccountCheck, error) {
	sel := p.cfg.Selectors.VerifyButton

	var st elementState
	if err := eval(ctx, &st, stateJS, sel); err != nil {
		return redeem.AccountCheck{}, fmt.Errorf("inspect %s: %w", sel, err)
	}
	if !st.Found {
		logging.Warn("Player id lookup not offered, continuing", "selector", sel)
		return redeem.AccountCheck{}, nil
	}

	exp := p.w.expect(urlMatcher(p.cfg.Endpoints.Account))
	defer p.w.forget(exp)
	if err := click(ctx, sel); err != nil {
		return redeem.AccountCheck{}, err
	}

	resp, err := exp.wait(ctx, p.cfg.Timeouts.Response)
	if ctx.Err() != nil {
		return redeem.AccountCheck{}, ctx.Err()
	}
	if err != nil {
		logging.Warn("Player id lookup not observed", "error", err)
		return redeem.AccountCheck{}, nil
	}
	check := parseAccount(resp.Body)
	logging.Info("Player id lookup answered", "status", resp.Status, "accepted", check.Accepted)
	return check, nil
}

type accountReply struct {
	Success  bool   `json:"Success"`
	Username string `json:"Username"`
	Message  string `json:"Message"`
}

// parseAccount reads the account lookup body. An unreadable body counts as
// unchecked.
func parseAccount(body string) redeem.AccountCheck {
	var r accountReply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		logging.Warn("Player id lookup unreadable", "body", clip(body, 200))
		return redeem.AccountCheck{}
	}
	if r.Success {
		return redeem.AccountCheck{Checked: true, Accepted: true, PlayerName: r.Username}
	}
	msg := r.Message
	if msg == "" {
		msg = "Invalid player ID"
	}
	return redeem.AccountCheck{Checked: true, Message: msg}
}

func (p *page) Submit(ctx context.Context) (redeem.Confirmation, error) {
	sel := p.cfg.Selectors
	t := p.cfg.Timeouts

	attempts := []struct {
		name    string
		script  string
		target  string
		timeout time.Duration
	}{
		{"click", clickJS, sel.RedeemButton, t.Confirm},
		{"form submit", submitFormJS, sel.Form, t.SubmitFallback},
	}
	for _, a := range attempts {
		conf, err := p.trySubmit(ctx, a.script, a.target, a.timeout)
		if ctx.Err() != nil {
			return redeem.Confirmation{}, ctx.Err()
		}
		if err != nil {
			logging.Warn("Submit attempt failed", "attempt", a.name, "error", err)
			continue
		}
		logging.Info("Confirmation received", "attempt", a.name, "status", conf.Status)
		if conf.OK() || conf.Body != "" {
			p.settle(ctx)
			return conf, nil
		}
	}
	return redeem.Confirmation{}, nil
}

func (p *page) trySubmit(ctx context.Context, script, target string, timeout time.Duration) (redeem.Confirmation, error) {
	exp := p.w.expect(urlMatcher(p.cfg.Endpoints.Confirm))
	defer p.w.forget(exp)

	var ok bool
	if err := eval(ctx, &ok, script, target); err != nil {
		return redeem.Confirmation{}, err
	}
	if !ok {
		return redeem.Confirmation{}, notFound(target)
	}
	resp, err := exp.wait(ctx, timeout)
	if err != nil {
		return redeem.Confirmation{}, err
	}
	return redeem.Confirmation{Received: true, Status: resp.Status, Body: resp.Body}, nil
}

// settle gives a navigation triggered by the submit a moment to render.
func (p *page) settle(ctx context.Context) {
	_ = within(ctx, p.cfg.Timeouts.Element, "body", chromedp.WaitReady("body", chromedp.ByQuery))
}

func click(ctx context.Context, sel string) error {
	var ok bool
	if err := eval(ctx, &ok, clickJS, sel); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	if !ok {
		return notFound(sel)
	}
	return nil
}

func eval(ctx context.Context, res any, fn string, args ...any) error {
	expr, err := call(fn, args...)
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, chromedp.Evaluate(expr, res))
}

// within runs actions under timeout. Running out of time while ctx is still
// alive means the element never showed up.
func within(ctx context.Context, timeout time.Duration, sel string, actions ...chromedp.Action) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return waitIn(ctx, wctx, sel, actions...)
}

func waitIn(ctx, wctx context.Context, sel string, actions ...chromedp.Action) error {
	err := chromedp.Run(wctx, actions...)
	if err != nil && ctx.Err() == nil && wctx.Err() != nil {
		return notFound(sel)
	}
	return err
}

func notFound(sel string) error {
	return fmt.Errorf("%w: %s", domain.ErrSelectorNotFound, sel)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
