package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

var (
	emailEntryButtons = []Sel{
		byText("button", "Continue with email"),
		byText("button", "Sign in with email"),
		byText("button", "Email"),
		byCSS("[data-testid='email-login']"),
		byCSS(".email-login-button"),
	}
	emailInputs = sels(
		"input[name='email']",
		"input[type='email']",
		"input[placeholder*='email' i]",
		"input#email",
		"[data-testid='email-input']",
	)
	passwordInputs = sels(
		"input[name='password']",
		"input[type='password']",
		"input[placeholder*='password' i]",
		"input#password",
		"[data-testid='password-input']",
	)
	loginButtons = []Sel{
		byText("button", "Log in"),
		byText("button", "Login"),
		byText("button", "Sign in"),
		byCSS("button[type='submit']"),
		byCSS("[data-testid='login-button']"),
		byCSS("button.login-button"),
		byCSS("button.signin-button"),
	}
	loginErrors = []Sel{
		byText("body", "Invalid email or password"),
		byText("body", "Incorrect credentials"),
		byText("body", "The credentials are incorrect"),
		byCSS(".error-message"),
		byCSS("[data-testid='login-error']"),
	}
	accountMenu     = byCSS(".user-menu, .user-avatar, .profile-icon, .user-account, .account-menu")
	accountURLParts = []string{"/editor", "/dashboard", "/projects", "/collections", "/profile"}
	loginURLParts   = []string{"/log-in", "/register", "/signup"}
	accountTexts    = []string{"Here's where you left off", "My downloads", "My collections", "My account"}
)

const (
	loginFormCSS = "input[name='email'], input[name='password'], input[type='password']"

	emailEntryScript = `(function() {
	for (const b of document.querySelectorAll('button')) {
		if ((b.innerText || '').toLowerCase().includes('email')) { b.click(); return true; }
	}
	return false;
})()`

	loginSubmitScript = `(function() {
	for (const b of document.querySelectorAll('button')) {
		const t = (b.innerText || '').toLowerCase();
		if (t.includes('log in') || t.includes('login') || t.includes('sign in')) { b.click(); return true; }
	}
	const f = document.querySelector('form');
	if (f) { f.requestSubmit ? f.requestSubmit() : f.submit(); return true; }
	return false;
})()`

	authStorageScript = `(function() {
	const hint = /auth|token|session|user/i;
	if (document.cookie.split(';').some(c => hint.test(c.split('=')[0]))) return true;
	try {
		for (let i = 0; i < localStorage.length; i++) {
			if (hint.test(localStorage.key(i))) return true;
		}
	} catch (e) {}
	return false;
})()`
)

func (d *Driver) login(ctx context.Context) (bool, error) {
	if ok, err := d.reuseSnapshot(ctx); err != nil || ok {
		return ok, err
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return d.freshLogin(ctx)
}

// reuseSnapshot restores the saved session and keeps it only if it still
// looks logged in.
func (d *Driver) reuseSnapshot(ctx context.Context) (bool, error) {
	if d.snapshots == nil {
		return false, nil
	}
	data, err := d.snapshots.Load(ctx)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		log.Printf("Session: failed to load saved session: %v", err)
		return false, nil
	}

	if err := d.page.Restore(ctx, data); err != nil {
		log.Printf("Session: saved session unusable: %v", err)
		d.dropSnapshot(ctx)
		return false, nil
	}
	if err := d.page.Navigate(ctx, homeURL); err != nil {
		log.Printf("Session: failed to check saved session: %v", err)
		d.discardSnapshot(ctx)
		return false, nil
	}
	_ = pause(ctx, d.cfg.Settle)
	d.dismissConsent(ctx)

	if d.loggedIn(ctx, false) {
		log.Printf("Session: reused saved session")
		return true, nil
	}
	log.Printf("Session: saved session expired, logging in again")
	d.discardSnapshot(ctx)
	return false, nil
}

// discardSnapshot forgets the saved session and the cookies it restored.
func (d *Driver) discardSnapshot(ctx context.Context) {
	d.dropSnapshot(ctx)
	if err := d.page.ClearSession(ctx); err != nil {
		log.Printf("Session: failed to clear browser state: %v", err)
	}
}

func (d *Driver) dropSnapshot(ctx context.Context) {
	if err := d.snapshots.Delete(ctx); err != nil {
		log.Printf("Session: failed to delete saved session: %v", err)
	}
}

func (d *Driver) saveSnapshot(ctx context.Context) {
	if d.snapshots == nil {
		return
	}
	data, err := d.page.Snapshot(ctx)
	if err == nil {
		err = d.snapshots.Save(ctx, data)
	}
	if err != nil {
		log.Printf("Session: failed to save session: %v", err)
	}
}

func (d *Driver) freshLogin(ctx context.Context) (bool, error) {
	fail := func(reason string) error {
		return &Error{Stage: StageAuthenticate, Kind: KindLoginFailed, Reason: reason}
	}

	if err := d.page.Navigate(ctx, homeURL); err != nil {
		return false, err
	}
	_ = pause(ctx, d.cfg.Settle)
	d.dismissConsent(ctx)
	if err := d.page.Navigate(ctx, loginURL); err != nil {
		return false, err
	}
	_ = pause(ctx, d.cfg.Settle)
	d.dismissConsent(ctx)

	if ok, _ := d.page.Visible(ctx, emailInputs[0], 5*time.Second); !ok {
		entry := append(d.clickStrategies(2*time.Second, emailEntryButtons...), Strategy{
			Name: "script",
			Attempt: func(ctx context.Context) (bool, error) {
				var clicked bool
				err := d.page.Eval(ctx, emailEntryScript, &clicked)
				return clicked, err
			},
		})
		if name, err := Cascade(ctx, "email login entry", entry); err == nil {
			log.Printf("Session: opened email login via %s", name)
			_ = pause(ctx, d.cfg.Settle)
		}
	}

	if err := d.fillFirst(ctx, "email field", emailInputs, d.cfg.Email); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fail("email field not found")
	}
	if err := d.fillFirst(ctx, "password field", passwordInputs, d.cfg.Password); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fail("password field not found")
	}

	stay := byCSS("input[type='checkbox']")
	if ok, _ := d.page.Visible(ctx, stay, time.Second); ok {
		if err := d.page.Click(ctx, stay); err != nil {
			log.Printf("Session: stay logged in checkbox: %v", err)
		}
	}

	solved, err := d.solveCaptcha(ctx, StageAuthenticate)
	if err != nil {
		return false, err
	}
	if !solved {
		if err := d.clickLogin(ctx); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, fail("login button not found")
		}
	}
	if err := pause(ctx, 2*d.cfg.Settle); err != nil {
		return false, err
	}

	if rejected, _ := d.page.Visible(ctx, byText("body", captchaFailedText), 2*time.Second); rejected {
		log.Printf("Session: login rejected by reCAPTCHA, solving")
		if _, err := d.solveCaptcha(ctx, StageAuthenticate); err != nil {
			return false, err
		}
		_ = pause(ctx, d.cfg.Settle)
	}

	if d.loggedIn(ctx, true) {
		d.saveSnapshot(ctx)
		return true, nil
	}
	if s, ok := d.visibleAny(ctx, time.Second, loginErrors...); ok {
		return false, fail("site reported " + describe(s))
	}
	return false, fail("no logged-in indicator after submit")
}

func (d *Driver) fillFirst(ctx context.Context, label string, candidates []Sel, value string) error {
	strategies := make([]Strategy, 0, len(candidates))
	for i, c := range candidates {
		wait := time.Second
		if i == 0 {
			wait = 5 * time.Second
		}
		strategies = append(strategies, Strategy{
			Name: describe(c),
			Attempt: func(ctx context.Context) (bool, error) {
				if ok, _ := d.page.Visible(ctx, c, wait); !ok {
					return false, nil
				}
				return true, d.page.Fill(ctx, c, value)
			},
		})
	}
	_, err := Cascade(ctx, label, strategies)
	return err
}

func (d *Driver) clickLogin(ctx context.Context) error {
	strategies := append(d.clickStrategies(time.Second, loginButtons...), Strategy{
		Name: "script",
		Attempt: func(ctx context.Context) (bool, error) {
			var clicked bool
			err := d.page.Eval(ctx, loginSubmitScript, &clicked)
			return clicked, err
		},
	})
	_, err := Cascade(ctx, "login button", strategies)
	return err
}

// loggedIn runs the account signals; any one of them is enough. The weak
// signals (login form gone, auth-looking storage) only count right after a
// credential submit, since an anonymous home page shows neither a login form
// nor a reliable lack of session cookies.
func (d *Driver) loggedIn(ctx context.Context, afterSubmit bool) bool {
	currentURL := func(ctx context.Context) string {
		u, _ := d.page.URL(ctx)
		return strings.ToLower(u)
	}
	visible := func(s Sel, wait time.Duration) func(context.Context) (bool, error) {
		return func(ctx context.Context) (bool, error) {
			return d.page.Visible(ctx, s, wait)
		}
	}

	signals := []Strategy{
		{Name: "account menu", Attempt: visible(accountMenu, 2*time.Second)},
		{Name: "start creating", Attempt: visible(byText("button", "Start creating"), 0)},
		{Name: "profile image", Attempt: visible(byCSS("img[alt*='profile'], .profile-image, .avatar-image"), 0)},
		{Name: "account url", Attempt: func(ctx context.Context) (bool, error) {
			return containsAny(currentURL(ctx), accountURLParts), nil
		}},
		{Name: "account text", Attempt: func(ctx context.Context) (bool, error) {
			for _, t := range accountTexts {
				if ok, _ := d.page.Visible(ctx, byText("body", t), 0); ok {
					return true, nil
				}
			}
			return false, nil
		}},
	}
	if afterSubmit {
		signals = append(signals,
			Strategy{Name: "login form gone", Attempt: func(ctx context.Context) (bool, error) {
				if containsAny(currentURL(ctx), loginURLParts) {
					return false, nil
				}
				form, err := d.page.Visible(ctx, byCSS(loginFormCSS), 0)
				return !form, err
			}},
			Strategy{Name: "auth storage", Attempt: func(ctx context.Context) (bool, error) {
				var ok bool
				err := d.page.Eval(ctx, authStorageScript, &ok)
				return ok, err
			}},
		)
	}

	name, err := Cascade(ctx, "login check", signals)
	if err != nil {
		return false
	}
	log.Printf("Session: logged in (%s)", name)
	return true
}

func containsAny(s string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
