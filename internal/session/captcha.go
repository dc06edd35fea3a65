package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

const captchaFailedText = "Recaptcha validation failed"

// Each detector returns the site key it found, or "".
const (
	detectCheckbox = `(function() {
	const el = document.querySelector('div.g-recaptcha');
	return el ? (el.getAttribute('data-sitekey') || '') : '';
})()`

	detectBadge = `(function() {
	if (!document.querySelector('.grecaptcha-badge')) return '';
	for (const s of document.querySelectorAll('script')) {
		const m = (s.src + ' ' + s.textContent).match(/sitekey[=:'"\s]+([0-9A-Za-z_-]{40})/);
		if (m) return m[1];
	}
	return '';
})()`

	detectIframe = `(function() {
	const f = document.querySelector("iframe[src*='recaptcha']");
	if (!f) return '';
	const m = f.src.match(/[?&]k=([^&]+)/);
	return m ? decodeURIComponent(m[1]) : '';
})()`

	detectErrorText = `(function() {
	if (!document.body || !document.body.innerText.includes('Recaptcha validation failed')) return '';
	const m = document.documentElement.outerHTML.match(/['"](6L[a-zA-Z0-9_-]{38})['"]/);
	return m ? m[1] : '';
})()`

	detectSource = `(function() {
	const html = document.documentElement.outerHTML;
	const patterns = [
		/sitekey\s*:\s*['"]([0-9A-Za-z_-]{40})['"]/,
		/data-sitekey=['"]([0-9A-Za-z_-]{40})['"]/,
		/render=([0-9A-Za-z_-]{40})/,
		/key\s*:\s*['"](6L[0-9A-Za-z_-]{38})['"]/,
	];
	for (const p of patterns) {
		const m = html.match(p);
		if (m) return m[1];
	}
	return '';
})()`

	injectScript = `(function(token) {
	let el = document.getElementById('g-recaptcha-response');
	if (!el) {
		el = document.createElement('textarea');
		el.id = 'g-recaptcha-response';
		el.name = 'g-recaptcha-response';
		el.style.display = 'none';
		document.body.appendChild(el);
	}
	el.value = token;
	el.innerHTML = token;
	document.querySelectorAll('textarea[id^="g-recaptcha-response-"]').forEach(t => { t.value = token; t.innerHTML = token; });
	let called = false;
	try {
		const cfg = window.___grecaptcha_cfg;
		if (cfg && cfg.clients) {
			for (const client of Object.values(cfg.clients)) {
				for (const v of Object.values(client)) {
					if (!v || typeof v !== 'object') continue;
					for (const w of Object.values(v)) {
						if (w && typeof w.callback === 'function') { w.callback(token); called = true; }
					}
				}
			}
		}
	} catch (e) {}
	return called;
})(%s)`
)

type challenge struct {
	SiteKey string
	Mode    string
}

func (c challenge) invisible() bool {
	return c.Mode == "invisible" || c.Mode == "iframe"
}

var captchaSubmit = []Sel{
	byCSS("button[type='submit']"),
	byCSS("input[type='submit']"),
	byCSS("button.submit-button"),
	byText("button", "Submit"),
	byText("button", "Continue"),
}

func (d *Driver) detectCaptcha(ctx context.Context) (challenge, bool) {
	var found challenge
	detect := func(mode, script string) Strategy {
		return Strategy{
			Name: mode,
			Attempt: func(ctx context.Context) (bool, error) {
				var key string
				if err := d.page.Eval(ctx, script, &key); err != nil {
					return false, err
				}
				if key == "" {
					return false, nil
				}
				found = challenge{SiteKey: key, Mode: mode}
				return true, nil
			},
		}
	}

	_, err := Cascade(ctx, "captcha detection", []Strategy{
		detect("checkbox", detectCheckbox),
		detect("invisible", detectBadge),
		detect("iframe", detectIframe),
		detect("error_detected", detectErrorText),
		detect("source_code", detectSource),
	})
	return found, err == nil
}

// solveCaptcha solves a detected reCAPTCHA, injects the token and submits.
// It reports false when no challenge is on the page.
func (d *Driver) solveCaptcha(ctx context.Context, stage Stage) (bool, error) {
	ch, ok := d.detectCaptcha(ctx)
	if !ok {
		return false, nil
	}
	fail := func(reason string, err error) error {
		return &Error{Stage: stage, Kind: KindCaptchaFailed, Reason: reason, Err: err}
	}
	if d.solver == nil {
		return false, fail("no solver configured", nil)
	}

	pageURL, err := d.page.URL(ctx)
	if err != nil {
		return false, fail("page url", err)
	}
	log.Printf("Session: solving %s reCAPTCHA on %s", ch.Mode, pageURL)
	token, err := d.solver.Solve(ctx, ch.SiteKey, pageURL, ch.invisible())
	if err != nil {
		return false, fail("solver", err)
	}

	var called bool
	if err := d.page.Eval(ctx, fmt.Sprintf(injectScript, jsString(token)), &called); err != nil {
		return false, fail("inject token", err)
	}
	if err := pause(ctx, d.cfg.Settle/2); err != nil {
		return false, err
	}

	if _, err := Cascade(ctx, "captcha submit", d.clickStrategies(time.Second, captchaSubmit...)); err != nil && !errors.Is(err, ErrNoStrategy) {
		return false, err
	}
	if err := d.clickLogin(ctx); err != nil && !errors.Is(err, ErrNoStrategy) {
		return false, err
	}
	if err := pause(ctx, d.cfg.Settle*3/2); err != nil {
		return false, err
	}

	if still, _ := d.page.Visible(ctx, byText("body", captchaFailedText), 0); still {
		return false, fail("token rejected", nil)
	}
	log.Printf("Session: reCAPTCHA accepted (callback=%t)", called)
	return true, nil
}
