package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

// ReasonSearchedSimilar is the AccessDenied reason when a keyword search for
// similar resources was run for the user.
const ReasonSearchedSimilar = "searched for similar resources"

const (
	accessDeniedText = "Access Denied"
	menuOptionCSS    = "[role='menuitem'], .dropdown-menu a, .menu a"
)

var (
	searchInputs = sels(
		"input[type='search']",
		"input[placeholder*='search' i]",
		"input[name='search']",
		"input[id*='search' i]",
		"input[class*='search' i]",
		".search-input",
		"#search-box",
		"form[role='search'] input",
	)
	searchButtons = []Sel{
		byCSS("button[type='submit']"),
		byText("button", "Search"),
		byCSS("[aria-label*='search' i]"),
	}

	// download trigger candidates, grouped by how they are recognized
	triggerByAttribute = []Sel{
		byCSS("a[data-cy='download-button']"),
		byText("button", "Download"),
	}
	triggerByLink = []Sel{
		byText("a", "Download"),
		byCSS("a[href*='download']"),
		byCSS("[data-testid*='download']"),
		byCSS("[aria-label*='download' i]"),
		byCSS("[data-tooltip*='download' i]"),
	}
	triggerByRow = []Sel{
		byText("tr button", "Download"),
		byText("div[role='row'] button", "Download"),
	}
	triggerByIcon = sels(
		"button:has(svg[class*='download' i])",
		"a:has(svg[class*='download' i])",
		"button:has(use[href*='download' i])",
	)
)

// FetchResource opens url and downloads the resource into the user's
// directory, returning the stored path.
func (d *Driver) FetchResource(ctx context.Context, url string) (string, error) {
	if err := d.machine.To(StateFetchingResource); err != nil {
		return "", err
	}
	fail := func(kind Kind, reason string, err error) error {
		return d.machine.Fail(&Error{Stage: StageFetchResource, Kind: kind, Reason: reason, Err: err})
	}

	if err := d.page.Navigate(ctx, homeURL); err != nil {
		return "", fail(KindDownloadButtonNotFound, "home page did not load", err)
	}
	_ = pause(ctx, d.cfg.Settle)
	d.dismissConsent(ctx)
	if err := d.page.Navigate(ctx, url); err != nil {
		return "", fail(KindDownloadButtonNotFound, "resource page did not load", err)
	}
	_ = pause(ctx, d.cfg.Settle)

	if d.accessDenied(ctx) {
		log.Printf("Session: access denied on %s, reloading", url)
		if err := d.page.Reload(ctx); err != nil {
			log.Printf("Session: reload failed: %v", err)
		}
		if err := pause(ctx, d.cfg.ReloadWait); err != nil {
			return "", fail(KindAccessDenied, "", err)
		}
		if d.accessDenied(ctx) {
			reason := "the direct link returned Access Denied"
			if d.searchSimilar(ctx, url) {
				reason = ReasonSearchedSimilar
			}
			return "", fail(KindAccessDenied, reason, nil)
		}
	}
	d.dismissConsent(ctx)

	trigger, how, err := d.findTrigger(ctx)
	if err != nil {
		return "", fail(KindDownloadButtonNotFound, "", ctxErr(ctx, err))
	}
	log.Printf("Session: download trigger found by %s", how)

	dl, err := d.startDownload(ctx, trigger)
	if err != nil {
		return "", fail(KindDownloadDidNotStart, "", ctxErr(ctx, err))
	}
	path, err := d.keep(dl)
	if err != nil {
		return "", fail(KindDownloadDidNotStart, "could not store the file", err)
	}

	d.resourceName = dl.SuggestedName
	log.Printf("Session: resource saved to %s", path)
	return path, d.machine.To(StateResourceFetched)
}

func (d *Driver) accessDenied(ctx context.Context) bool {
	if ok, _ := d.page.Visible(ctx, byText("body", accessDeniedText), 0); ok {
		return true
	}
	title, _ := d.page.Title(ctx)
	return strings.Contains(title, accessDeniedText)
}

// searchSimilar searches the site for keywords taken from url and reports
// whether a results page was reached.
func (d *Driver) searchSimilar(ctx context.Context, url string) bool {
	terms := SearchTerms(url)
	if len(terms) == 0 {
		return false
	}
	query := strings.Join(terms, " ")
	log.Printf("Session: searching for %q instead", query)

	if err := d.page.Navigate(ctx, homeURL); err != nil {
		log.Printf("Session: search fallback: %v", err)
		return false
	}
	_ = pause(ctx, d.cfg.Settle)
	d.dismissConsent(ctx)

	var box Sel
	strategies := make([]Strategy, 0, len(searchInputs))
	for _, c := range searchInputs {
		strategies = append(strategies, Strategy{
			Name: describe(c),
			Attempt: func(ctx context.Context) (bool, error) {
				if ok, _ := d.page.Visible(ctx, c, time.Second); !ok {
					return false, nil
				}
				if err := d.page.Fill(ctx, c, query); err != nil {
					return false, err
				}
				box = c
				return true, nil
			},
		})
	}
	if _, err := Cascade(ctx, "search box", strategies); err != nil {
		return false
	}

	if err := d.page.PressEnter(ctx, box); err != nil {
		log.Printf("Session: search submit: %v", err)
	}
	_ = pause(ctx, d.cfg.Settle*3/2)

	u, _ := d.page.URL(ctx)
	if !strings.Contains(strings.ToLower(u), "search") {
		if _, err := Cascade(ctx, "search button", d.clickStrategies(time.Second, searchButtons...)); err == nil {
			_ = pause(ctx, d.cfg.Settle*3/2)
		}
		u, _ = d.page.URL(ctx)
	}
	u = strings.ToLower(u)
	return strings.Contains(u, "search") || strings.Contains(u, "query")
}

func (d *Driver) findTrigger(ctx context.Context) (Sel, string, error) {
	var found Sel
	group := func(name string, wait time.Duration, candidates []Sel) Strategy {
		return Strategy{
			Name: name,
			Attempt: func(ctx context.Context) (bool, error) {
				s, ok := d.visibleAny(ctx, wait, candidates...)
				if ok {
					found = s
				}
				return ok, nil
			},
		}
	}

	how, err := Cascade(ctx, "download trigger", []Strategy{
		group("data attribute", 10*time.Second, triggerByAttribute),
		group("link text", time.Second, triggerByLink),
		group("table row", time.Second, triggerByRow),
		group("icon", time.Second, triggerByIcon),
	})
	return found, how, err
}

// startDownload tries the ways the site starts a transfer, from a plain
// click through a script-dispatched one.
func (d *Driver) startDownload(ctx context.Context, trigger Sel) (*FileDownload, error) {
	var dl *FileDownload
	expect := func(timeout time.Duration, fire func(ctx context.Context) error) func(context.Context) (bool, error) {
		return func(ctx context.Context) (bool, error) {
			got, err := d.page.ExpectDownload(ctx, timeout, fire)
			if err != nil {
				return false, err
			}
			dl = got
			return true, nil
		}
	}
	click := func(s Sel) func(context.Context) error {
		return func(ctx context.Context) error { return d.page.Click(ctx, s) }
	}
	menu := func(word string) func(context.Context) (bool, error) {
		option := byText(menuOptionCSS, word)
		return func(ctx context.Context) (bool, error) {
			if ok, _ := d.page.Visible(ctx, option, 2*time.Second); !ok {
				return false, nil
			}
			return expect(d.cfg.DownloadTimeout, click(option))(ctx)
		}
	}

	name, err := Cascade(ctx, "download start", []Strategy{
		{Name: "direct click", Attempt: expect(d.cfg.QuickTimeout, click(trigger))},
		{Name: "zip menu option", Attempt: menu("zip")},
		{Name: "download menu option", Attempt: menu("download")},
		{Name: "forced click", Attempt: expect(d.cfg.DownloadTimeout, func(ctx context.Context) error {
			return d.page.ForceClick(ctx, trigger)
		})},
		{Name: "script click", Attempt: expect(d.cfg.QuickTimeout, func(ctx context.Context) error {
			return d.page.ScriptClick(ctx, trigger)
		})},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Session: download started via %s", name)
	return dl, nil
}

// ctxErr prefers the context error over a cascade exhaustion.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrNoStrategy) {
		return nil
	}
	return err
}
