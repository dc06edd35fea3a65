package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

const (
	homeURL      = "https://www.freepik.com/"
	loginURL     = "https://www.freepik.com/log-in?client_id=freepik&lang=en"
	downloadsURL = "https://www.freepik.com/user/downloads?page=1&type=regular"
)

// Solver returns a reCAPTCHA response token for siteKey on pageURL.
type Solver interface {
	Solve(ctx context.Context, siteKey, pageURL string, invisible bool) (string, error)
}

type Config struct {
	Email       string
	Password    string
	DownloadDir string

	LoginAttempts   int
	LoginBackoff    time.Duration
	DownloadTimeout time.Duration
	QuickTimeout    time.Duration
	LicenseTimeout  time.Duration

	// Settle is how long to let a page run its scripts after navigation.
	Settle     time.Duration
	ReloadWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = 2
	}
	if c.LoginBackoff <= 0 {
		c.LoginBackoff = 2 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 60 * time.Second
	}
	if c.QuickTimeout <= 0 {
		c.QuickTimeout = 5 * time.Second
	}
	if c.LicenseTimeout <= 0 {
		c.LicenseTimeout = 30 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 2 * time.Second
	}
	if c.ReloadWait <= 0 {
		c.ReloadWait = 5 * time.Second
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}
	return c
}

// Factory builds one Driver per job.
type Factory struct {
	Config    Config
	Launcher  Launcher
	Snapshots types.SnapshotStore
	Solver    Solver
}

func (f *Factory) New(userID int64, onPhase func(string)) *Driver {
	return &Driver{
		cfg:       f.Config.withDefaults(),
		launcher:  f.Launcher,
		snapshots: f.Snapshots,
		solver:    f.Solver,
		userID:    userID,
		onPhase:   onPhase,
		machine:   NewMachine(),
		now:       time.Now,
	}
}

// Driver runs the authenticate, fetch resource and fetch license stages
// against one browser that it owns until Close.
type Driver struct {
	cfg       Config
	launcher  Launcher
	snapshots types.SnapshotStore
	solver    Solver
	userID    int64
	onPhase   func(string)
	machine   *Machine
	now       func() time.Time

	page         Page
	resourceName string
}

func (d *Driver) State() State { return d.machine.State() }

// ResourceName is the site's file name for the last fetched resource.
func (d *Driver) ResourceName() string { return d.resourceName }

func (d *Driver) phase(p string) {
	if d.onPhase != nil {
		d.onPhase(p)
	}
}

func (d *Driver) open(ctx context.Context) error {
	if d.page != nil {
		return nil
	}
	p, err := d.launcher.Open(ctx)
	if err != nil {
		return err
	}
	d.page = p
	return nil
}

// Close tears the browser down. Safe to call more than once.
func (d *Driver) Close() error {
	if d.page == nil {
		return nil
	}
	err := d.page.Close()
	d.page = nil
	return err
}

func (d *Driver) Authenticate(ctx context.Context) error {
	if err := d.machine.To(StateAuthenticating); err != nil {
		return err
	}
	if err := d.open(ctx); err != nil {
		return d.machine.Fail(&Error{Stage: StageAuthenticate, Kind: KindLoginFailed, Reason: "browser did not start", Err: err})
	}

	var last error
	for attempt := 1; attempt <= d.cfg.LoginAttempts; attempt++ {
		d.phase(fmt.Sprintf("Login attempt %d...", attempt))
		ok, err := d.login(ctx)
		if err == nil && ok {
			log.Printf("Session: logged in on attempt %d", attempt)
			return d.machine.To(StateAuthenticated)
		}
		if ctx.Err() != nil {
			return d.machine.Fail(&Error{Stage: StageAuthenticate, Kind: KindLoginFailed, Err: ctx.Err()})
		}
		last = err
		log.Printf("Session: login attempt %d/%d failed: %v", attempt, d.cfg.LoginAttempts, err)
		if attempt < d.cfg.LoginAttempts {
			if err := pause(ctx, d.cfg.LoginBackoff); err != nil {
				return d.machine.Fail(&Error{Stage: StageAuthenticate, Kind: KindLoginFailed, Err: err})
			}
		}
	}

	var se *Error
	if errors.As(last, &se) {
		return d.machine.Fail(se)
	}
	return d.machine.Fail(&Error{
		Stage:  StageAuthenticate,
		Kind:   KindLoginFailed,
		Reason: fmt.Sprintf("not logged in after %d attempts", d.cfg.LoginAttempts),
		Err:    last,
	})
}

// keep moves a finished transfer into the user's directory under a unique
// name.
func (d *Driver) keep(dl *FileDownload) (string, error) {
	name := UniqueName(dl.SuggestedName, d.userID, d.now())
	return moveFile(dl.Path, UserDir(d.cfg.DownloadDir, d.userID), name)
}

// visibleAny returns the first of candidates that shows up; only the first gets the
// full wait.
func (d *Driver) visibleAny(ctx context.Context, wait time.Duration, candidates ...Sel) (Sel, bool) {
	for i, s := range candidates {
		w := wait
		if i > 0 {
			w = 0
		}
		if ok, _ := d.page.Visible(ctx, s, w); ok {
			return s, true
		}
	}
	return Sel{}, false
}

// clickStrategies turns candidate elements into click strategies.
func (d *Driver) clickStrategies(wait time.Duration, candidates ...Sel) []Strategy {
	out := make([]Strategy, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Strategy{
			Name: describe(c),
			Attempt: func(ctx context.Context) (bool, error) {
				if ok, _ := d.page.Visible(ctx, c, wait); !ok {
					return false, nil
				}
				return true, d.page.Click(ctx, c)
			},
		})
	}
	return out
}

func describe(s Sel) string {
	if s.Text != "" {
		return fmt.Sprintf("%s[text=%q]", s.CSS, s.Text)
	}
	return s.CSS
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
