package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage is a scripted page: elements in visible are always visible,
// clicking an element listed in downloads starts that download, and clicking
// one listed in clickNav moves the page to a new URL.
type fakePage struct {
	mu  sync.Mutex
	dir string

	url           string
	title         string
	visible       map[Sel]bool
	evals         map[string]any
	rows          []string
	downloads     map[Sel]string
	clickNav      map[Sel]string
	covered       map[Sel]bool
	urlAfterEnter string
	navFailures   map[string]int

	navigations []string
	clicks      []Sel
	filled      map[Sel]string
	reloads     int
	restored    []byte
	cleared     bool
	closed      int
	lastClick   *Sel
	forced      int
	transfers   int
}

func newFakePage(t *testing.T) *fakePage {
	return &fakePage{
		dir:         t.TempDir(),
		visible:     make(map[Sel]bool),
		evals:       make(map[string]any),
		downloads:   make(map[Sel]string),
		clickNav:    make(map[Sel]string),
		covered:     make(map[Sel]bool),
		filled:      make(map[Sel]string),
		navFailures: make(map[string]int),
	}
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	if f.navFailures[url] > 0 {
		f.navFailures[url]--
		return errors.New("net::ERR_TIMED_OUT")
	}
	f.url = url
	return nil
}

func (f *fakePage) Reload(context.Context) error {
	f.reloads++
	return nil
}

func (f *fakePage) URL(context.Context) (string, error)   { return f.url, nil }
func (f *fakePage) Title(context.Context) (string, error) { return f.title, nil }

func (f *fakePage) Visible(_ context.Context, sel Sel, _ time.Duration) (bool, error) {
	return f.visible[sel], nil
}

func (f *fakePage) Click(_ context.Context, sel Sel) error {
	if !f.visible[sel] {
		return ErrNotVisible
	}
	if f.covered[sel] {
		return errors.New("element is covered by another element")
	}
	return f.press(sel)
}

func (f *fakePage) ForceClick(_ context.Context, sel Sel) error {
	if !f.visible[sel] {
		return ErrNotVisible
	}
	f.forced++
	return f.press(sel)
}

func (f *fakePage) press(sel Sel) error {
	f.clicks = append(f.clicks, sel)
	f.lastClick = &sel
	if u, ok := f.clickNav[sel]; ok {
		f.url = u
	}
	return nil
}

func (f *fakePage) ScriptClick(ctx context.Context, sel Sel) error {
	return f.Click(ctx, sel)
}

func (f *fakePage) Fill(_ context.Context, sel Sel, value string) error {
	f.filled[sel] = value
	return nil
}

func (f *fakePage) PressEnter(context.Context, Sel) error {
	if f.urlAfterEnter != "" {
		f.url = f.urlAfterEnter
	}
	return nil
}

func (f *fakePage) Attribute(context.Context, Sel, string) (string, error) { return "", nil }

func (f *fakePage) Contents(context.Context, string) ([]string, error) { return f.rows, nil }

func (f *fakePage) Eval(_ context.Context, expr string, out any) error {
	v, ok := f.evals[expr]
	if !ok {
		return nil
	}
	switch o := out.(type) {
	case *string:
		*o = v.(string)
	case *bool:
		*o = v.(bool)
	}
	return nil
}

func (f *fakePage) ExpectDownload(ctx context.Context, _ time.Duration, trigger func(context.Context) error) (*FileDownload, error) {
	f.lastClick = nil
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	if f.lastClick == nil {
		return nil, errors.New("no download started")
	}
	name, ok := f.downloads[*f.lastClick]
	if !ok {
		return nil, errors.New("no download started")
	}
	f.transfers++
	path := filepath.Join(f.dir, fmt.Sprintf("guid-%d", f.transfers))
	if err := os.WriteFile(path, []byte("payload:"+name), 0o644); err != nil {
		return nil, err
	}
	return &FileDownload{Path: path, SuggestedName: name}, nil
}

func (f *fakePage) Snapshot(context.Context) ([]byte, error) { return []byte("fresh-session"), nil }

func (f *fakePage) Restore(_ context.Context, data []byte) error {
	f.restored = data
	return nil
}

func (f *fakePage) ClearSession(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakePage) Close() error {
	f.closed++
	return nil
}

type fakeLauncher struct {
	page   *fakePage
	opened int
}

func (l *fakeLauncher) Open(context.Context) (Page, error) {
	l.opened++
	return l.page, nil
}

type memSnapshots struct {
	data    []byte
	saves   int
	deletes int
}

func (m *memSnapshots) Load(context.Context) ([]byte, error) {
	if m.data == nil {
		return nil, types.ErrNotFound
	}
	return m.data, nil
}

func (m *memSnapshots) Save(_ context.Context, data []byte) error {
	m.data = data
	m.saves++
	return nil
}

func (m *memSnapshots) Delete(context.Context) error {
	m.data = nil
	m.deletes++
	return nil
}

type fakeSolver struct {
	token string
	err   error
	calls []string
}

func (s *fakeSolver) Solve(_ context.Context, siteKey, pageURL string, invisible bool) (string, error) {
	s.calls = append(s.calls, fmt.Sprintf("%s|%s|%t", siteKey, pageURL, invisible))
	return s.token, s.err
}

type harness struct {
	page      *fakePage
	launcher  *fakeLauncher
	snapshots *memSnapshots
	solver    *fakeSolver
	phases    []string
	dir       string
	driver    *Driver
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		page:      newFakePage(t),
		snapshots: &memSnapshots{},
		solver:    &fakeSolver{token: "tok"},
		dir:         t.TempDir(),
	}
	h.launcher = &fakeLauncher{page: h.page}
	f := &Factory{
		Config: Config{
			Email:        "bot@example.com",
			Password:     "secret",
			DownloadDir:  h.dir,
			LoginBackoff: time.Millisecond,
			Settle:       time.Millisecond,
			ReloadWait:   time.Millisecond,
		},
		Launcher:  h.launcher,
		Snapshots: h.snapshots,
		Solver:    h.solver,
	}
	h.driver = f.New(42, func(p string) { h.phases = append(h.phases, p) })
	h.driver.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	t.Cleanup(func() { _ = h.driver.Close() })
	return h
}

// loggedInViaSnapshot makes the saved-session path succeed.
func (h *harness) loggedInViaSnapshot(t *testing.T) {
	t.Helper()
	h.snapshots.data = []byte("saved-session")
	h.page.visible[accountMenu] = true
	require.NoError(t, h.driver.Authenticate(context.Background()))
}

func TestAuthenticateReusesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)

	assert.Equal(t, StateAuthenticated, h.driver.State())
	assert.Equal(t, "saved-session", string(h.page.restored))
	assert.NotContains(t, h.page.navigations, loginURL)
	assert.Zero(t, h.snapshots.deletes)
	assert.Zero(t, h.snapshots.saves)
	assert.Equal(t, []string{"Login attempt 1..."}, h.phases)
	assert.Equal(t, 1, h.launcher.opened)
}

func TestAuthenticateExpiredSnapshotFallsBackToFreshLogin(t *testing.T) {
	h := newHarness(t)
	h.snapshots.data = []byte("stale-session")
	h.page.visible[emailInputs[0]] = true
	h.page.visible[passwordInputs[0]] = true
	h.page.visible[loginButtons[0]] = true
	h.page.clickNav[loginButtons[0]] = homeURL

	require.NoError(t, h.driver.Authenticate(context.Background()))

	assert.Equal(t, StateAuthenticated, h.driver.State())
	assert.True(t, h.page.cleared, "expired session must be cleared before logging in")
	assert.Equal(t, 1, h.snapshots.deletes)
	assert.Equal(t, 1, h.snapshots.saves)
	assert.Equal(t, "fresh-session", string(h.snapshots.data))
	assert.Contains(t, h.page.navigations, loginURL)
	assert.Equal(t, "bot@example.com", h.page.filled[emailInputs[0]])
	assert.Equal(t, "secret", h.page.filled[passwordInputs[0]])
	assert.Empty(t, h.solver.calls)
}

func TestAuthenticateSnapshotCheckErrorStillLogsInFresh(t *testing.T) {
	h := newHarness(t)
	h.snapshots.data = []byte("saved-session")
	h.page.navFailures[homeURL] = 1
	h.page.visible[emailInputs[0]] = true
	h.page.visible[passwordInputs[0]] = true
	h.page.visible[loginButtons[0]] = true
	h.page.clickNav[loginButtons[0]] = homeURL

	require.NoError(t, h.driver.Authenticate(context.Background()))

	assert.Equal(t, StateAuthenticated, h.driver.State())
	assert.Equal(t, []string{"Login attempt 1..."}, h.phases)
	assert.True(t, h.page.cleared)
	assert.Equal(t, 1, h.snapshots.deletes)
	assert.Equal(t, "fresh-session", string(h.snapshots.data))
	assert.Contains(t, h.page.navigations, loginURL)
}

func TestAuthenticateFailsAfterTwoAttempts(t *testing.T) {
	h := newHarness(t)

	err := h.driver.Authenticate(context.Background())
	require.Error(t, err)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageAuthenticate, se.Stage)
	assert.Equal(t, KindLoginFailed, se.Kind)
	assert.Equal(t, StateFailed, h.driver.State())
	assert.Equal(t, []string{"Login attempt 1...", "Login attempt 2..."}, h.phases)
	assert.Zero(t, h.snapshots.saves, "failed login must not persist a session")

	_, err = h.driver.FetchResource(context.Background(), "https://www.freepik.com/free-vector/x_1.htm")
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestAuthenticateCaptchaSolverFailure(t *testing.T) {
	h := newHarness(t)
	h.page.visible[emailInputs[0]] = true
	h.page.visible[passwordInputs[0]] = true
	h.page.evals[detectCheckbox] = "6LcheckboxKey"
	h.solver.err = errors.New("ERROR_CAPTCHA_UNSOLVABLE")

	err := h.driver.Authenticate(context.Background())
	assert.True(t, IsKind(err, KindCaptchaFailed), "got %v", err)
	require.Len(t, h.solver.calls, 2, "one solve per login attempt")
	assert.Equal(t, "6LcheckboxKey|"+loginURL+"|false", h.solver.calls[0])
	assert.Empty(t, h.page.clicks, "login must not be submitted without a token")
}

func TestAuthenticateSolvesInvisibleCaptcha(t *testing.T) {
	h := newHarness(t)
	h.page.visible[emailInputs[0]] = true
	h.page.visible[passwordInputs[0]] = true
	h.page.visible[loginButtons[0]] = true
	h.page.clickNav[loginButtons[0]] = "https://www.freepik.com/projects"
	h.page.evals[detectBadge] = "6LbadgeKey"

	require.NoError(t, h.driver.Authenticate(context.Background()))
	require.Len(t, h.solver.calls, 1)
	assert.True(t, strings.HasSuffix(h.solver.calls[0], "|true"), "badge challenges are invisible")
	assert.Equal(t, 1, h.snapshots.saves)
}

func TestFetchResourceStoresUnderUserDir(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)
	trigger := triggerByAttribute[0]
	h.page.visible[trigger] = true
	h.page.downloads[trigger] = "sunset-poster.zip"

	path, err := h.driver.FetchResource(context.Background(), "https://www.freepik.com/free-vector/sunset-poster_123.htm")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(h.dir, "user_42", "sunset-poster_42_20240309_140507.zip"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload:sunset-poster.zip", string(data))
	assert.Equal(t, "sunset-poster.zip", h.driver.ResourceName())
	assert.Equal(t, StateResourceFetched, h.driver.State())
	assert.Equal(t, homeURL, h.page.navigations[len(h.page.navigations)-2], "home page is visited first")
}

func TestFetchResourceFallsBackToMenuOption(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)
	trigger := triggerByLink[1]
	zip := byText(menuOptionCSS, "zip")
	h.page.visible[trigger] = true
	h.page.visible[zip] = true
	h.page.downloads[zip] = "pack.zip"

	path, err := h.driver.FetchResource(context.Background(), "https://www.freepik.com/premium-vector/pack_9.htm")
	require.NoError(t, err)
	assert.Equal(t, "pack_42_20240309_140507.zip", filepath.Base(path))
	assert.Equal(t, []Sel{trigger, zip}, h.page.clicks[len(h.page.clicks)-2:])
}

func TestFetchResourceAccessDeniedSearchesSimilar(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)
	h.page.visible[byText("body", accessDeniedText)] = true
	h.page.visible[searchInputs[0]] = true
	h.page.urlAfterEnter = "https://www.freepik.com/search?query=hand+drawn"

	_, err := h.driver.FetchResource(context.Background(), "https://www.freepik.com/free-vector/hand-drawn-flat-design-sale-banner_12345678.htm")

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindAccessDenied, se.Kind)
	assert.Equal(t, StageFetchResource, se.Stage)
	assert.Equal(t, ReasonSearchedSimilar, se.Reason)
	assert.Equal(t, 1, h.page.reloads)
	assert.Equal(t, "hand drawn flat design sale", h.page.filled[searchInputs[0]])
	assert.Equal(t, StateFailed, h.driver.State())
}

func TestFetchResourceAccessDeniedByTitle(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)
	h.page.title = "Access Denied"

	_, err := h.driver.FetchResource(context.Background(), "https://www.freepik.com/free-photo/cat_1.htm")
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindAccessDenied, se.Kind)
	assert.NotEqual(t, ReasonSearchedSimilar, se.Reason)
}

func TestFetchResourceWithoutTrigger(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)

	_, err := h.driver.FetchResource(context.Background(), "https://www.freepik.com/free-photo/cat_1.htm")
	assert.True(t, IsKind(err, KindDownloadButtonNotFound), "got %v", err)
}

func TestFetchResourceDownloadNeverStarts(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)
	h.page.visible[triggerByAttribute[1]] = true

	_, err := h.driver.FetchResource(context.Background(), "https://www.freepik.com/free-photo/cat_1.htm")
	assert.True(t, IsKind(err, KindDownloadDidNotStart), "got %v", err)
	// direct, forced and script clicks all hit the trigger
	assert.Len(t, h.page.clicks, 3)
}

func TestFetchResourceForcedClickPastOverlay(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)
	trigger := triggerByAttribute[0]
	h.page.visible[trigger] = true
	h.page.covered[trigger] = true
	h.page.downloads[trigger] = "overlay.zip"

	path, err := h.driver.FetchResource(context.Background(), "https://www.freepik.com/free-vector/overlay_5.htm")
	require.NoError(t, err)
	assert.Equal(t, "overlay_42_20240309_140507.zip", filepath.Base(path))
	assert.Equal(t, 1, h.page.forced)
	assert.Equal(t, trigger, h.page.clicks[len(h.page.clicks)-1])
}

func TestFetchLicenseMatchesRowByName(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)
	h.page.rows = []string{
		"<th>Name</th>",
		`<td>watercolor-frame.zip</td><td><button>Download license</button></td>`,
		`<td>Sunset-Beach-Poster.zip</td><td><button>Download license</button></td>`,
	}
	btn := inRow(2, licenseButton)
	h.page.visible[btn] = true
	h.page.visible[inRow(1, licenseButton)] = true
	h.page.downloads[btn] = "license-sunset.pdf"

	path, err := h.driver.FetchLicense(context.Background(), "Sunset-Beach-Poster.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.dir, "user_42", "license-sunset_42_20240309_140507.pdf"), path)
	assert.Equal(t, StateDone, h.driver.State())
	assert.Equal(t, downloadsURL, h.page.navigations[len(h.page.navigations)-1])
}

func TestFetchLicenseFallsBackToLatestRow(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)
	h.page.rows = []string{
		"<th>Name</th>",
		`<td>watercolor-frame.zip</td><td><button>Download license</button></td>`,
	}
	btn := inRow(1, licenseButton)
	h.page.visible[btn] = true
	h.page.downloads[btn] = "license.pdf"

	path, err := h.driver.FetchLicense(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "license_42_20240309_140507.pdf", filepath.Base(path))
}

func TestFetchLicenseNotFound(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)

	_, err := h.driver.FetchLicense(context.Background(), "poster.zip")
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindLicenseNotFound, se.Kind)
	assert.Equal(t, StageFetchLicense, se.Stage)
}

func TestDriverCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.loggedInViaSnapshot(t)

	require.NoError(t, h.driver.Close())
	require.NoError(t, h.driver.Close())
	assert.Equal(t, 1, h.page.closed)
}
