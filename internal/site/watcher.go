package site

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"pinredeem/internal/infra/logging"
)

// response is an XHR the page made, captured once its body has loaded.
type response struct {
	URL    string
	Status int64
	Body   string
	Err    error
}

// expectation waits for the first response whose URL satisfies match.
type expectation struct {
	match func(url string) bool
	done  chan response

	once  sync.Once
	reqID network.RequestID
	resp  response
}

func (e *expectation) deliver(r response) {
	e.once.Do(func() { e.done <- r })
}

// wait blocks until the response arrives, timeout passes or ctx ends.
func (e *expectation) wait(ctx context.Context, timeout time.Duration) (response, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case r := <-e.done:
		return r, r.Err
	case <-t.C:
		return response{}, fmt.Errorf("no response within %s", timeout)
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// watcher observes network and fetch events of one tab. It captures
// responses for registered expectations and fails requests for blocked
// resources.
type watcher struct {
	ctx     context.Context
	blocker blocker

	mu       sync.Mutex
	expected []*expectation
	inflight map[network.RequestID]*expectation
}

func newWatcher(ctx context.Context, b blocker) *watcher {
	return &watcher{ctx: ctx, blocker: b, inflight: make(map[network.RequestID]*expectation)}
}

// expect registers interest in the next response matching match. Register
// before triggering the request.
func (w *watcher) expect(match func(url string) bool) *expectation {
	e := &expectation{match: match, done: make(chan response, 1)}
	w.mu.Lock()
	w.expected = append(w.expected, e)
	w.mu.Unlock()
	return e
}

// forget drops an expectation that is no longer waited for.
func (w *watcher) forget(e *expectation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, x := range w.expected {
		if x == e {
			w.expected = append(w.expected[:i], w.expected[i+1:]...)
			break
		}
	}
	if e.reqID != "" {
		delete(w.inflight, e.reqID)
	}
}

// handle is the ListenTarget callback. It runs on the event loop and must not
// block; CDP calls are issued from goroutines.
func (w *watcher) handle(ev any) {
	switch ev := ev.(type) {
	case *fetch.EventRequestPaused:
		go w.decide(ev)

	case *network.EventResponseReceived:
		if ev.Response == nil {
			return
		}
		w.mu.Lock()
		for i, e := range w.expected {
			if e.match(ev.Response.URL) {
				e.reqID = ev.RequestID
				e.resp = response{URL: ev.Response.URL, Status: ev.Response.Status}
				w.inflight[ev.RequestID] = e
				w.expected = append(w.expected[:i], w.expected[i+1:]...)
				break
			}
		}
		w.mu.Unlock()

	case *network.EventLoadingFinished:
		if e := w.take(ev.RequestID); e != nil {
			go w.readBody(ev.RequestID, e)
		}

	case *network.EventLoadingFailed:
		if e := w.take(ev.RequestID); e != nil {
			r := e.resp
			r.Err = fmt.Errorf("request to %s failed: %s", r.URL, ev.ErrorText)
			e.deliver(r)
		}
	}
}

func (w *watcher) take(id network.RequestID) *expectation {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.inflight[id]
	if !ok {
		return nil
	}
	delete(w.inflight, id)
	return e
}

func (w *watcher) executor() (context.Context, bool) {
	c := chromedp.FromContext(w.ctx)
	if c == nil || c.Target == nil {
		return nil, false
	}
	return cdp.WithExecutor(w.ctx, c.Target), true
}

func (w *watcher) readBody(id network.RequestID, e *expectation) {
	r := e.resp
	ctx, ok := w.executor()
	if !ok {
		e.deliver(r)
		return
	}
	body, err := network.GetResponseBody(id).Do(ctx)
	if err != nil {
		// The status alone is still useful to the caller.
		logging.Debug("Response body unavailable", "url", r.URL, "error", err)
	}
	r.Body = string(body)
	e.deliver(r)
}

func (w *watcher) decide(ev *fetch.EventRequestPaused) {
	ctx, ok := w.executor()
	if !ok {
		return
	}
	url := ""
	if ev.Request != nil {
		url = ev.Request.URL
	}
	var err error
	if w.blocker.blocked(string(ev.ResourceType), url) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(ctx)
	}
	if err != nil && w.ctx.Err() == nil {
		logging.Debug("Paused request not resolved", "url", url, "error", err)
	}
}

// blocker decides which requests never leave the browser.
type blocker struct {
	types   map[string]struct{}
	domains []string
}

func newBlocker(types, domains []string) blocker {
	b := blocker{types: make(map[string]struct{}, len(types))}
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			b.types[t] = struct{}{}
		}
	}
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			b.domains = append(b.domains, d)
		}
	}
	return b
}

func (b blocker) enabled() bool {
	return len(b.types) > 0 || len(b.domains) > 0
}

func (b blocker) blocked(resourceType, url string) bool {
	if _, ok := b.types[strings.ToLower(resourceType)]; ok {
		return true
	}
	lower := strings.ToLower(url)
	for _, d := range b.domains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// urlMatcher builds a predicate for a URL containing marker but none of
// the exclusions.
func urlMatcher(marker string, exclude ...string) func(string) bool {
	return func(url string) bool {
		if !strings.Contains(url, marker) {
			return false
		}
		for _, x := range exclude {
			if x != "" && strings.Contains(url, x) {
				return false
			}
		}
		return true
	}
}
