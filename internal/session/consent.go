package session

import (
	"context"
	"errors"
	"log"
)

var consentButtons = sels(
	"#onetrust-accept-btn-handler",
	"[data-testid='cookie-accept']",
	"[aria-label='Accept cookies']",
	".cookie-consent-accept",
	"button.cookie-accept-button",
	".cookie-banner .accept",
)

var consentTexts = []string{
	"Accept all cookies", "Accept all", "Accept", "I accept", "Allow all",
	"Allow cookies", "Agree", "I agree", "Got it", "I understand", "I consent",
}

const consentScript = `(function() {
	const sels = ['.cc-accept', '.cookie-accept', '.consent-accept', '#accept-cookies', '.cookie-agree', '[data-cookiebanner="accept_button"]'];
	for (const s of sels) {
		const el = document.querySelector(s);
		if (el && el.offsetParent !== null) { el.click(); return true; }
	}
	return false;
})()`

// dismissConsent clicks away a cookie banner if one is showing. It never
// fails the caller.
func (d *Driver) dismissConsent(ctx context.Context) {
	candidates := append([]Sel{}, consentButtons...)
	for _, t := range consentTexts {
		candidates = append(candidates, byText("button", t))
	}
	strategies := append(d.clickStrategies(0, candidates...), Strategy{
		Name: "script",
		Attempt: func(ctx context.Context) (bool, error) {
			var clicked bool
			err := d.page.Eval(ctx, consentScript, &clicked)
			return clicked, err
		},
	})

	name, err := Cascade(ctx, "cookie consent", strategies)
	switch {
	case err == nil:
		log.Printf("Session: cookie consent dismissed via %s", name)
		_ = pause(ctx, d.cfg.Settle/2)
	case !errors.Is(err, ErrNoStrategy):
		log.Printf("Session: cookie consent: %v", err)
	}
}
