package redeem

import (
	"context"
	"sync"
	"time"

	"pinredeem/internal/config"
	"pinredeem/internal/domain"
	"pinredeem/internal/infra/chrome"
)

// fakeSessions records every session handed out and released.
type fakeSessions struct {
	mu         sync.Mutex
	acquireErr error
	acquired   []*chrome.Session
	released   map[string]error
	cookies    map[string]map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		released: make(map[string]error),
		cookies:  make(map[string]map[string]string),
	}
}

func (f *fakeSessions) Acquire(ctx context.Context) (*chrome.Session, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := string(rune('a' + len(f.acquired)))
	s := &chrome.Session{ID: id, Ctx: context.WithValue(context.Background(), sessionKey{}, id)}
	f.acquired = append(f.acquired, s)
	f.cookies[id] = make(map[string]string)
	return s, nil
}

func (f *fakeSessions) Release(s *chrome.Session, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[s.ID] = err
	delete(f.cookies, s.ID)
}

func (f *fakeSessions) jar(ctx context.Context) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := ctx.Value(sessionKey{}).(string)
	return f.cookies[id]
}

type sessionKey struct{}

// fakeSite serves a scripted page. Hooks override single steps.
type fakeSite struct {
	sessions *fakeSessions

	openErr      error
	submitPINErr error
	firstText    string
	detailsShown bool
	fillErr      error
	account      AccountCheck
	accountErr   error
	confirmation Confirmation
	submitErr    error
	finalText    string
	panicOnFill  bool
	blockOpen    bool

	mu       sync.Mutex
	attached int
	seen     []domain.RedemptionRequest
	priorPIN []string
}

func (s *fakeSite) Attach(ctx context.Context) Page {
	s.mu.Lock()
	s.attached++
	s.mu.Unlock()
	return &fakePage{site: s}
}

type fakePage struct {
	site      *fakeSite
	submitted bool
}

func (p *fakePage) Open(ctx context.Context) error {
	if p.site.blockOpen {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.site.openErr
}

func (p *fakePage) SubmitPIN(ctx context.Context, pin string) error {
	if p.site.sessions != nil {
		jar := p.site.sessions.jar(ctx)
		p.site.mu.Lock()
		p.site.priorPIN = append(p.site.priorPIN, jar["pin"])
		p.site.mu.Unlock()
		jar["pin"] = pin
	}
	return p.site.submitPINErr
}

func (p *fakePage) WaitForDetails(ctx context.Context) error { return ctx.Err() }

func (p *fakePage) Text(ctx context.Context) (string, error) {
	if p.submitted {
		return p.site.finalText, nil
	}
	return p.site.firstText, nil
}

func (p *fakePage) DetailsFormVisible(ctx context.Context) (bool, error) {
	return p.site.detailsShown, nil
}

func (p *fakePage) FillDetails(ctx context.Context, req domain.RedemptionRequest) error {
	if p.site.panicOnFill {
		panic("unexpected page state")
	}
	p.site.mu.Lock()
	p.site.seen = append(p.site.seen, req)
	p.site.mu.Unlock()
	return p.site.fillErr
}

func (p *fakePage) VerifyAccount(ctx context.Context) (AccountCheck, error) {
	return p.site.account, p.site.accountErr
}

func (p *fakePage) Submit(ctx context.Context) (Confirmation, error) {
	p.submitted = true
	return p.site.confirmation, p.site.submitErr
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Redeem.Timeout = 5 * time.Second
	cfg.Redeem.Keywords = config.DefaultKeywords()
	cfg.Browser.AcquireTimeout = time.Second
	return cfg
}

func scenarioRequest() domain.RedemptionRequest {
	return domain.RedemptionRequest{
		PinKey:    "AAAA-BBBB-CCCC",
		FullName:  "Juan Pérez",
		BirthDate: "15/03/1990",
		PlayerID:  "123456789",
		Country:   "Argentina",
	}
}

// happySite walks through every step and lands on a success banner.
func happySite(sessions *fakeSessions) *fakeSite {
	return &fakeSite{
		sessions:     sessions,
		firstText:    "Nome completo\nID do jogador",
		detailsShown: true,
		account:      AccountCheck{Checked: true, Accepted: true, PlayerName: "JuanP"},
		confirmation: Confirmation{Received: true, Status: 200, Body: `{"Success":true}`},
		finalText:    "Your PIN was successfully redeemed!",
	}
}
