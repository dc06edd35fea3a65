package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36 Edg/114.0.1823.58",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5.1 Safari/605.1.15",
}

func randomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

const (
	defaultActionTimeout   = 60 * time.Second
	defaultTransferTimeout = 10 * time.Minute
	findTimeout            = 10 * time.Second
	visiblePoll            = 250 * time.Millisecond
	markAttr               = "data-fpbot"
)

var ErrNotVisible = errors.New("element not visible")

// ChromeLauncher starts a local Chrome through chromedp.
type ChromeLauncher struct {
	Headless bool
	ExecPath string
	// StagingDir receives in-flight downloads before they are moved into a
	// user directory.
	StagingDir      string
	ActionTimeout   time.Duration
	TransferTimeout time.Duration
}

func (l *ChromeLauncher) Open(ctx context.Context) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.DisableGPU,
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(randomUserAgent()),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	if err := os.MkdirAll(l.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	staging, err := os.MkdirTemp(l.StagingDir, "incoming-")
	if err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithErrorf(log.Printf))

	p := &chromePage{
		ctx:             browserCtx,
		cancelBrowser:   cancelBrowser,
		cancelAlloc:     cancelAlloc,
		staging:         staging,
		timeout:         l.ActionTimeout,
		transferTimeout: l.TransferTimeout,
		transfers:       make(map[string]*transfer),
		changed:         make(chan struct{}, 1),
	}
	if p.timeout <= 0 {
		p.timeout = defaultActionTimeout
	}
	if p.transferTimeout <= 0 {
		p.transferTimeout = defaultTransferTimeout
	}

	chromedp.ListenTarget(browserCtx, p.onEvent)
	if err := chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(staging).
			WithEventsEnabled(true),
		emulation.SetLocaleOverride().WithLocale("en-US"),
	); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return p, nil
}

type transfer struct {
	guid      string
	suggested string
	state     browser.DownloadProgressState
	path      string
}

type chromePage struct {
	ctx             context.Context
	cancelBrowser   context.CancelFunc
	cancelAlloc     context.CancelFunc
	staging         string
	timeout         time.Duration
	transferTimeout time.Duration

	mu        sync.Mutex
	transfers map[string]*transfer
	order     []string
	changed   chan struct{}
	marks     int

	closeOnce sync.Once
}

func (p *chromePage) onEvent(ev any) {
	p.mu.Lock()
	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		if _, ok := p.transfers[e.GUID]; !ok {
			p.transfers[e.GUID] = &transfer{guid: e.GUID, suggested: e.SuggestedFilename}
			p.order = append(p.order, e.GUID)
		}
	case *browser.EventDownloadProgress:
		t, ok := p.transfers[e.GUID]
		if !ok {
			t = &transfer{guid: e.GUID}
			p.transfers[e.GUID] = t
			p.order = append(p.order, e.GUID)
		}
		t.state = e.State
		if e.FilePath != "" {
			t.path = e.FilePath
		}
	default:
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = p.timeout
	}
	cctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(cctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, 0, chromedp.Navigate(url))
}

func (p *chromePage) Reload(ctx context.Context) error {
	return p.run(ctx, 0, chromedp.Reload())
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, findTimeout, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var t string
	err := p.run(ctx, findTimeout, chromedp.Title(&t))
	return t, err
}

const findScript = `(function(scope, idx, sel, want, mark) {
	try {
		let root = document;
		if (scope) {
			root = document.querySelectorAll(scope)[idx];
			if (!root) return false;
		}
		want = want.toLowerCase();
		for (const el of root.querySelectorAll(sel)) {
			const r = el.getBoundingClientRect();
			const st = window.getComputedStyle(el);
			if (r.width === 0 || r.height === 0 || st.visibility === 'hidden' || st.display === 'none') continue;
			if (want && !(el.innerText || el.textContent || el.value || '').toLowerCase().includes(want)) continue;
			if (mark) el.setAttribute(%s, mark);
			return true;
		}
	} catch (e) {}
	return false;
})(%s, %d, %s, %s, %s)`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func findExpr(sel Sel, mark string) string {
	return fmt.Sprintf(findScript, jsString(markAttr),
		jsString(sel.Scope), sel.ScopeIndex, jsString(sel.CSS), jsString(sel.Text), jsString(mark))
}

func (p *chromePage) find(ctx context.Context, sel Sel, mark string) (bool, error) {
	var found bool
	err := p.run(ctx, findTimeout, chromedp.Evaluate(findExpr(sel, mark), &found))
	return found, err
}

func (p *chromePage) Visible(ctx context.Context, sel Sel, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		// evaluation fails while a navigation is in progress, which only
		// means the element is not there yet
		if ok, err := p.find(ctx, sel, ""); err == nil && ok {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(visiblePoll):
		}
	}
}

// mark tags the first visible match of sel and returns a query selector for it.
func (p *chromePage) mark(ctx context.Context, sel Sel) (string, error) {
	p.mu.Lock()
	p.marks++
	id := strconv.Itoa(p.marks)
	p.mu.Unlock()

	ok, err := p.find(ctx, sel, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s %q", ErrNotVisible, sel.CSS, sel.Text)
	}
	return fmt.Sprintf(`[%s="%s"]`, markAttr, id), nil
}

func (p *chromePage) Click(ctx context.Context, sel Sel) error {
	q, err := p.mark(ctx, sel)
	if err != nil {
		return err
	}
	return p.run(ctx, 0,
		chromedp.ScrollIntoView(q, chromedp.ByQuery),
		chromedp.Click(q, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

func (p *chromePage) ForceClick(ctx context.Context, sel Sel) error {
	q, err := p.mark(ctx, sel)
	if err != nil {
		return err
	}
	var nodes []*cdp.Node
	if err := p.run(ctx, findTimeout, chromedp.Nodes(q, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s %q", ErrNotVisible, sel.CSS, sel.Text)
	}
	return p.run(ctx, 0, chromedp.MouseClickNode(nodes[0]))
}

func (p *chromePage) ScriptClick(ctx context.Context, sel Sel) error {
	q, err := p.mark(ctx, sel)
	if err != nil {
		return err
	}
	var ok bool
	expr := fmt.Sprintf(`(function(){ const el = document.querySelector(%s); if (!el) return false; el.click(); return true; })()`, jsString(q))
	if err := p.run(ctx, findTimeout, chromedp.Evaluate(expr, &ok)); err != nil {
		return err
	}
	if !ok {
		return ErrNotVisible
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, sel Sel, value string) error {
	q, err := p.mark(ctx, sel)
	if err != nil {
		return err
	}
	return p.run(ctx, 0,
		chromedp.Focus(q, chromedp.ByQuery),
		chromedp.SetValue(q, "", chromedp.ByQuery),
		chromedp.SendKeys(q, value, chromedp.ByQuery),
	)
}

func (p *chromePage) PressEnter(ctx context.Context, sel Sel) error {
	q, err := p.mark(ctx, sel)
	if err != nil {
		return err
	}
	return p.run(ctx, 0, chromedp.SendKeys(q, kb.Enter, chromedp.ByQuery))
}

func (p *chromePage) Attribute(ctx context.Context, sel Sel, name string) (string, error) {
	q, err := p.mark(ctx, sel)
	if err != nil {
		return "", err
	}
	var (
		v  string
		ok bool
	)
	if err := p.run(ctx, findTimeout, chromedp.AttributeValue(q, name, &v, &ok, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return v, nil
}

func (p *chromePage) Contents(ctx context.Context, sel string) ([]string, error) {
	var out []string
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => e.innerHTML)`, jsString(sel))
	err := p.run(ctx, findTimeout, chromedp.Evaluate(expr, &out))
	return out, err
}

func (p *chromePage) Eval(ctx context.Context, expr string, out any) error {
	return p.run(ctx, 0, chromedp.Evaluate(expr, out))
}

func (p *chromePage) firstTransferAfter(n int) *transfer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) <= n {
		return nil
	}
	t := *p.transfers[p.order[n]]
	return &t
}

func (p *chromePage) transferState(guid string) transfer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.transfers[guid]
}

func (p *chromePage) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func(ctx context.Context) error) (*FileDownload, error) {
	p.mu.Lock()
	seen := len(p.order)
	p.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := trigger(startCtx); err != nil {
		return nil, err
	}

	var t *transfer
	for t == nil {
		if t = p.firstTransferAfter(seen); t != nil {
			break
		}
		select {
		case <-p.changed:
		case <-startCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("no download started within %s", timeout)
		}
	}

	doneCtx, cancelDone := context.WithTimeout(ctx, p.transferTimeout)
	defer cancelDone()
	for {
		cur := p.transferState(t.guid)
		switch cur.state {
		case browser.DownloadProgressStateCompleted:
			path := cur.path
			if path == "" {
				path = filepath.Join(p.staging, cur.guid)
			}
			return &FileDownload{Path: path, SuggestedName: cur.suggested}, nil
		case browser.DownloadProgressStateCanceled:
			return nil, fmt.Errorf("download %s was canceled", cur.suggested)
		}
		select {
		case <-p.changed:
		case <-time.After(time.Second):
		case <-doneCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("download %s did not finish within %s", cur.suggested, p.transferTimeout)
		}
	}
}

type snapshotCookie struct {
	Name     string                 `json:"name"`
	Value    string                 `json:"value"`
	Domain   string                 `json:"domain"`
	Path     string                 `json:"path"`
	Expires  float64                `json:"expires"`
	HTTPOnly bool                   `json:"http_only"`
	Secure   bool                   `json:"secure"`
	Session  bool                   `json:"session"`
	SameSite network.CookieSameSite `json:"same_site,omitempty"`
}

type snapshot struct {
	Cookies      []snapshotCookie  `json:"cookies"`
	Origin       string            `json:"origin,omitempty"`
	LocalStorage map[string]string `json:"local_storage,omitempty"`
	SavedAt      time.Time         `json:"saved_at"`
}

func (p *chromePage) Snapshot(ctx context.Context) ([]byte, error) {
	var s snapshot
	err := p.run(ctx, 0,
		chromedp.ActionFunc(func(c context.Context) error {
			cookies, err := network.GetCookies().Do(c)
			if err != nil {
				return err
			}
			for _, ck := range cookies {
				s.Cookies = append(s.Cookies, snapshotCookie{
					Name: ck.Name, Value: ck.Value, Domain: ck.Domain, Path: ck.Path,
					Expires: ck.Expires, HTTPOnly: ck.HTTPOnly, Secure: ck.Secure,
					Session: ck.Session, SameSite: ck.SameSite,
				})
			}
			return nil
		}),
		chromedp.Evaluate(`location.origin`, &s.Origin),
		chromedp.Evaluate(`(function(){ const o = {}; try { for (let i = 0; i < localStorage.length; i++) { const k = localStorage.key(i); o[k] = localStorage.getItem(k); } } catch (e) {} return o; })()`, &s.LocalStorage),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot session: %w", err)
	}
	s.SavedAt = time.Now().UTC()
	return json.Marshal(s)
}

func (p *chromePage) Restore(ctx context.Context, data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode session snapshot: %w", err)
	}

	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, ck := range s.Cookies {
		cp := &network.CookieParam{
			Name: ck.Name, Value: ck.Value, Domain: ck.Domain, Path: ck.Path,
			HTTPOnly: ck.HTTPOnly, Secure: ck.Secure, SameSite: ck.SameSite,
		}
		if !ck.Session && ck.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			cp.Expires = &exp
		}
		params = append(params, cp)
	}

	actions := []chromedp.Action{network.SetCookies(params)}
	if s.Origin != "" && len(s.LocalStorage) > 0 {
		items, err := json.Marshal(s.LocalStorage)
		if err != nil {
			return err
		}
		var ok bool
		actions = append(actions,
			chromedp.Navigate(s.Origin),
			chromedp.Evaluate(fmt.Sprintf(`(function(items){ for (const k in items) { localStorage.setItem(k, items[k]); } return true; })(%s)`, items), &ok),
		)
	}
	if err := p.run(ctx, 0, actions...); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return nil
}

func (p *chromePage) ClearSession(ctx context.Context) error {
	var ok bool
	return p.run(ctx, 0,
		network.ClearBrowserCookies(),
		chromedp.Evaluate(`(function(){ try { localStorage.clear(); } catch (e) {} return true; })()`, &ok),
	)
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		if err := chromedp.Cancel(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Session: browser shutdown: %v", err)
		}
		p.cancelBrowser()
		p.cancelAlloc()
		if err := os.RemoveAll(p.staging); err != nil {
			log.Printf("Session: failed to remove %s: %v", p.staging, err)
		}
	})
	return nil
}
