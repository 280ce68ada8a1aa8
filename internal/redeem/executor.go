package redeem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pinredeem/internal/config"
	"pinredeem/internal/domain"
	"pinredeem/internal/infra/chrome"
	"pinredeem/internal/infra/logging"
)

// Sessions hands out isolated browser sessions.
type Sessions interface {
	Acquire(ctx context.Context) (*chrome.Session, error)
	Release(s *chrome.Session, err error)
}

// Executor runs one redemption per call against the shared browser.
type Executor struct {
	sessions       Sessions
	site           Site
	rules          Rules
	timeout        time.Duration
	acquireTimeout time.Duration
}

// NewExecutor wires the executor to its browser sessions and site adapter.
func NewExecutor(sessions Sessions, site Site, cfg config.Config) *Executor {
	return &Executor{
		sessions:       sessions,
		site:           site,
		rules:          NewRules(cfg.Redeem.Keywords),
		timeout:        cfg.Redeem.Timeout,
		acquireTimeout: cfg.Browser.AcquireTimeout,
	}
}

// Redeem performs the full redemption flow for req. It never returns an error
// and never panics: every failure is reported as an unsuccessful result. The
// session is released on every path.
func (e *Executor) Redeem(ctx context.Context, req domain.RedemptionRequest) (res domain.RedemptionResult) {
	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var (
		session *chrome.Session
		stepErr error
	)
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redemption panicked", "panic", fmt.Sprint(r), "player_id", req.PlayerID)
			stepErr = fmt.Errorf("panic: %v", r)
			res = domain.Failed(MsgAutomation, fmt.Sprint(r))
		}
		if session != nil {
			e.sessions.Release(session, stepErr)
		}
		logging.Info("Redemption finished",
			"player_id", req.PlayerID,
			"success", res.Success,
			"message", res.Message,
			"elapsed", time.Since(start),
		)
	}()

	acquireCtx := ctx
	if e.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, e.acquireTimeout)
		defer cancel()
	}
	s, err := e.sessions.Acquire(acquireCtx)
	if err != nil {
		logging.Warn("No browser session available", "error", err)
		return failureFor(err)
	}
	session = s
	logging.Info("Redemption started", "player_id", req.PlayerID, "session", s.ID)

	res, stepErr = e.run(ctx, s, req)
	return res
}

func (e *Executor) run(ctx context.Context, s *chrome.Session, req domain.RedemptionRequest) (domain.RedemptionResult, error) {
	pctx, cancel := sessionContext(ctx, s)
	defer cancel()

	page := e.site.Attach(pctx)

	if err := page.Open(pctx); err != nil {
		return stepFailure("open", err), err
	}
	if err := page.SubmitPIN(pctx, req.PinKey); err != nil {
		return stepFailure("submit pin", err), err
	}
	if err := page.WaitForDetails(pctx); err != nil {
		return stepFailure("wait for details", err), err
	}

	text, err := page.Text(pctx)
	if err != nil {
		return stepFailure("read page", err), err
	}
	if kw, ok := e.rules.PINError(text); ok {
		logging.Warn("PIN rejected by site", "keyword", kw)
		return PINErrorResult(kw), nil
	}

	visible, err := page.DetailsFormVisible(pctx)
	if err != nil {
		return stepFailure("detect details form", err), err
	}
	if !visible && !e.rules.DetailsForm(text) {
		return domain.Failed(MsgNoDetailsForm, truncate(text, 500)), nil
	}

	if err := page.FillDetails(pctx, req); err != nil {
		return stepFailure("fill details", err), err
	}

	check, err := page.VerifyAccount(pctx)
	if err != nil {
		return stepFailure("verify account", err), err
	}
	if check.Checked && !check.Accepted {
		logging.Warn("Player id rejected by site", "message", check.Message)
		return domain.Failed(MsgPlayerIDError, check.Message), nil
	}

	conf, err := page.Submit(pctx)
	if err != nil {
		res := stepFailure("submit", err)
		res.PlayerName = check.PlayerName
		return res, err
	}
	if !conf.Received {
		res := domain.Failed(MsgSubmitFailed, "all submit attempts failed")
		res.PlayerName = check.PlayerName
		return res, nil
	}

	text, err = page.Text(pctx)
	if err != nil {
		res := stepFailure("read result", err)
		res.PlayerName = check.PlayerName
		return res, err
	}
	res := e.rules.Classify(text, conf)
	res.PlayerName = check.PlayerName
	if !res.Success {
		logging.Warn("Redemption not confirmed", "message", res.Message, "details", truncate(res.Details, 200))
	}
	return res, nil
}

// sessionContext derives a context from the session (so chromedp finds its
// target) that also ends when the request context does.
func sessionContext(ctx context.Context, s *chrome.Session) (context.Context, context.CancelFunc) {
	var (
		pctx   context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		pctx, cancel = context.WithDeadline(s.Ctx, deadline)
	} else {
		pctx, cancel = context.WithCancel(s.Ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return pctx, func() {
		stop()
		cancel()
	}
}

func stepFailure(step string, err error) domain.RedemptionResult {
	logging.Warn("Redemption step failed", "step", step, "error", err)
	return failureFor(err)
}

// failureFor maps an error to the result reported to the caller.
func failureFor(err error) domain.RedemptionResult {
	switch {
	case errors.Is(err, domain.ErrSelectorNotFound):
		return domain.Failed(MsgSiteChanged, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Failed(MsgTimeout, err.Error())
	case errors.Is(err, domain.ErrBrowserNotReady), errors.Is(err, domain.ErrPoolClosed):
		return domain.Failed(MsgBrowserUnavailable, err.Error())
	case chrome.IsSessionInterrupted(err):
		return domain.Failed(MsgInterrupted, err.Error())
	default:
		return domain.Failed(MsgAutomation, err.Error())
	}
}
