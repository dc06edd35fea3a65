package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/internal/admission"
	"github.com/BatmanBruc/bat-bot-freepik/internal/delivery"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/queue"
	"github.com/BatmanBruc/bat-bot-freepik/internal/session"
	"github.com/BatmanBruc/bat-bot-freepik/store"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resourceURL = "https://www.freepik.com/premium-photo/sunset-beach_12345.htm"

type fakeSession struct {
	q   *queue.Queue
	uid int64
	dir string

	authErr     error
	resourceErr error
	licenseErr  error
	panicOn     string
	block       chan struct{}

	mu           sync.Mutex
	calls        []string
	phases       []string
	licenseQuery string
	closed       bool
}

func (f *fakeSession) step(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.phases = append(f.phases, f.q.Status(f.uid).Phase)
	if f.panicOn == name {
		panic("browser exploded")
	}
}

func (f *fakeSession) Authenticate(ctx context.Context) error {
	f.step("auth")
	if f.block != nil {
		<-f.block
	}
	return f.authErr
}

func (f *fakeSession) FetchResource(ctx context.Context, url string) (string, error) {
	f.step("resource")
	if f.resourceErr != nil {
		return "", f.resourceErr
	}
	return writeFile(f.dir, "sunset_42_20240309_140507.zip")
}

func (f *fakeSession) FetchLicense(ctx context.Context, resourceName string) (string, error) {
	f.step("license")
	f.mu.Lock()
	f.licenseQuery = resourceName
	f.mu.Unlock()
	if f.licenseErr != nil {
		return "", f.licenseErr
	}
	return writeFile(f.dir, "sunset_42_20240309_141000.pdf")
}

func (f *fakeSession) ResourceName() string { return "sunset" }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func writeFile(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, []byte("payload"), 0o644)
}

type recordingSink struct {
	mu         sync.Mutex
	notes      []string
	delivered  []types.DeliveryFile
	offered    []types.Job
	deliverErr error
}

func (r *recordingSink) Notify(ctx context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, text)
	return nil
}

func (r *recordingSink) Deliver(ctx context.Context, chatID int64, files []types.DeliveryFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range files {
		_, err := os.Stat(f.Path)
		if err != nil {
			return err
		}
	}
	r.delivered = append(r.delivered, files...)
	return r.deliverErr
}

func (r *recordingSink) OfferLicense(ctx context.Context, job types.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offered = append(r.offered, job)
	return nil
}

func (r *recordingSink) snapshot() ([]string, []types.DeliveryFile, []types.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notes...), append([]types.DeliveryFile(nil), r.delivered...), append([]types.Job(nil), r.offered...)
}

type harness struct {
	store    *store.MemoryStore
	queue    *queue.Queue
	gate     *admission.Gate
	sink     *recordingSink
	sched    *Scheduler
	mu       sync.Mutex
	sessions []*fakeSession
}

func newHarness(t *testing.T, configure func(*fakeSession)) *harness {
	t.Helper()
	h := &harness{
		store: store.NewMemoryStore(),
		queue: queue.New(5),
		sink:  &recordingSink{},
	}
	h.gate = admission.New(h.store, h.queue)
	dir := t.TempDir()

	factory := func(job types.Job, onPhase func(string)) Session {
		fs := &fakeSession{q: h.queue, uid: job.UserID, dir: dir}
		if configure != nil {
			configure(fs)
		}
		h.mu.Lock()
		h.sessions = append(h.sessions, fs)
		h.mu.Unlock()
		return fs
	}
	h.sched = NewScheduler(h.queue, factory, h.sink, h.store, Config{
		LicenseDelay:  time.Millisecond,
		ErrorBackoff:  time.Millisecond,
		ShutdownGrace: 10 * time.Millisecond,
	})
	t.Cleanup(h.sched.Stop)
	return h
}

func (h *harness) subscribe(t *testing.T, userID int64) {
	t.Helper()
	ctx := context.Background()
	sub, err := h.store.CreateSubscription(ctx, userID, types.ServiceFreepik, "monthly", "")
	require.NoError(t, err)
	ok, err := h.store.ActivateSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func (h *harness) admit(t *testing.T, job types.Job) {
	t.Helper()
	_, _, err := h.gate.Admit(context.Background(), job)
	require.NoError(t, err)
}

func (h *harness) waitIdle(t *testing.T, userID int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.Lock()
		started := len(h.sessions) > 0
		h.mu.Unlock()
		return started && h.queue.Status(userID).Kind == types.StatusIdle
	}, 5*time.Second, 5*time.Millisecond)
}

func (h *harness) session(t *testing.T, i int) *fakeSession {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Greater(t, len(h.sessions), i)
	return h.sessions[i]
}

func (h *harness) quota(t *testing.T, userID int64) int {
	t.Helper()
	rec, err := h.store.GetOrInitQuota(context.Background(), userID, types.ServiceFreepik, time.Now())
	require.NoError(t, err)
	return rec.Count
}

func TestFullJobDeliversResourceAndLicense(t *testing.T) {
	h := newHarness(t, nil)
	h.subscribe(t, 42)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL})
	require.Equal(t, 1, h.quota(t, 42))

	h.sched.Start()
	h.waitIdle(t, 42)

	fs := h.session(t, 0)
	assert.Equal(t, []string{"auth", "resource", "license"}, fs.calls)
	assert.Equal(t, []string{PhaseLoggingIn, PhaseResource, PhaseLicense}, fs.phases)
	assert.Equal(t, "sunset", fs.licenseQuery)
	assert.True(t, fs.closed)

	notes, delivered, offered := h.sink.snapshot()
	assert.Equal(t, []string{messages.DownloadStarting(resourceURL), messages.ResourceDownloaded()}, notes)
	require.Len(t, delivered, 2)
	assert.False(t, delivered[0].License)
	assert.True(t, delivered[1].License)
	assert.Empty(t, offered)

	for _, f := range delivered {
		_, err := os.Stat(f.Path)
		assert.True(t, os.IsNotExist(err), "file %s should be removed", f.Path)
	}

	downloads, err := h.store.ListUserDownloads(context.Background(), 42, 10)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, "sunset_42_20240309_140507.zip", downloads[0].FileName)
	assert.Equal(t, resourceURL, downloads[0].URL)
	assert.Equal(t, int64(len("payload")), downloads[0].Size)

	assert.Equal(t, 1, h.quota(t, 42))
}

func TestMissingLicenseIsPartialSuccess(t *testing.T) {
	h := newHarness(t, func(fs *fakeSession) {
		fs.licenseErr = &session.Error{Stage: session.StageFetchLicense, Kind: session.KindLicenseNotFound}
	})
	h.subscribe(t, 42)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL})

	h.sched.Start()
	h.waitIdle(t, 42)

	notes, delivered, offered := h.sink.snapshot()
	require.Len(t, delivered, 1)
	assert.False(t, delivered[0].License)
	require.Len(t, offered, 1)
	assert.Equal(t, "sunset", offered[0].ResourceName)
	assert.Equal(t, resourceURL, offered[0].URL)
	assert.NotContains(t, notes, messages.LicenseFailed())
}

func TestLoginFailureReportsAndClearsActive(t *testing.T) {
	h := newHarness(t, func(fs *fakeSession) {
		fs.authErr = &session.Error{Stage: session.StageAuthenticate, Kind: session.KindLoginFailed, Reason: "no logged-in indicator after submit"}
	})
	h.subscribe(t, 42)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL})

	h.sched.Start()
	h.waitIdle(t, 42)

	fs := h.session(t, 0)
	assert.Equal(t, []string{"auth"}, fs.calls)
	assert.True(t, fs.closed)

	notes, delivered, _ := h.sink.snapshot()
	assert.Contains(t, notes, messages.LoginFailed())
	assert.Empty(t, delivered)

	downloads, err := h.store.ListUserDownloads(context.Background(), 42, 10)
	require.NoError(t, err)
	assert.Empty(t, downloads)
	assert.Empty(t, h.queue.Active())
	assert.Equal(t, 1, h.quota(t, 42))
}

func TestAccessDeniedAfterSearch(t *testing.T) {
	h := newHarness(t, func(fs *fakeSession) {
		fs.resourceErr = &session.Error{Stage: session.StageFetchResource, Kind: session.KindAccessDenied, Reason: session.ReasonSearchedSimilar}
	})
	h.subscribe(t, 42)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL})

	h.sched.Start()
	h.waitIdle(t, 42)

	assert.Equal(t, []string{"auth", "resource"}, h.session(t, 0).calls)
	notes, _, _ := h.sink.snapshot()
	assert.Contains(t, notes, messages.AccessDeniedSearched())
}

func TestPanicIsContainedAndWorkerContinues(t *testing.T) {
	var n int
	var mu sync.Mutex
	h := newHarness(t, func(fs *fakeSession) {
		mu.Lock()
		defer mu.Unlock()
		if n == 0 {
			fs.panicOn = "resource"
		}
		n++
	})
	h.subscribe(t, 1)
	h.subscribe(t, 2)
	h.admit(t, types.Job{UserID: 1, ChatID: 1, URL: resourceURL})
	h.admit(t, types.Job{UserID: 2, ChatID: 2, URL: resourceURL})

	h.sched.Start()
	require.Eventually(t, func() bool {
		_, delivered, _ := h.sink.snapshot()
		return len(delivered) == 2 && h.queue.Status(2).Kind == types.StatusIdle
	}, 5*time.Second, 5*time.Millisecond)

	assert.True(t, h.session(t, 0).closed)
	assert.Equal(t, types.StatusIdle, h.queue.Status(1).Kind)

	notes, _, _ := h.sink.snapshot()
	assert.Contains(t, notes, messages.JobCrashed(errors.New("panic: browser exploded")))
}

func TestLicenseOnlyJob(t *testing.T) {
	h := newHarness(t, nil)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL, LicenseOnly: true, ResourceName: "sunset"})
	assert.Equal(t, 0, h.quota(t, 42))

	h.sched.Start()
	h.waitIdle(t, 42)

	fs := h.session(t, 0)
	assert.Equal(t, []string{"auth", "license"}, fs.calls)
	assert.Equal(t, "sunset", fs.licenseQuery)

	notes, delivered, offered := h.sink.snapshot()
	require.Len(t, delivered, 1)
	assert.True(t, delivered[0].License)
	assert.Empty(t, offered)
	assert.Equal(t, []string{messages.LicenseDownloaded()}, notes)

	downloads, err := h.store.ListUserDownloads(context.Background(), 42, 10)
	require.NoError(t, err)
	assert.Empty(t, downloads)
}

func TestLicenseOnlyWithoutLicense(t *testing.T) {
	h := newHarness(t, func(fs *fakeSession) {
		fs.licenseErr = &session.Error{Stage: session.StageFetchLicense, Kind: session.KindLicenseNotFound}
	})
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL, LicenseOnly: true})

	h.sched.Start()
	h.waitIdle(t, 42)

	assert.Equal(t, licensePlaceholder, h.session(t, 0).licenseQuery)
	notes, delivered, _ := h.sink.snapshot()
	assert.Empty(t, delivered)
	assert.Equal(t, []string{messages.LicenseFailed()}, notes)
}

func TestUploadTimeoutIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.sink.deliverErr = errors.Join(&delivery.Error{File: "sunset.zip", Timeout: true})
	h.subscribe(t, 42)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL})

	h.sched.Start()
	h.waitIdle(t, 42)

	notes, _, offered := h.sink.snapshot()
	assert.Contains(t, notes, messages.UploadTimedOut())
	assert.Empty(t, offered)
}

func TestStopInterruptsLicenseWait(t *testing.T) {
	h := newHarness(t, nil)
	h.sched.cfg.LicenseDelay = time.Hour
	h.subscribe(t, 42)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL})

	h.sched.Start()
	require.Eventually(t, func() bool {
		return h.queue.Status(42).Phase == PhaseWaitLicense
	}, 5*time.Second, 5*time.Millisecond)

	h.sched.Stop()
	assert.Equal(t, types.StatusIdle, h.queue.Status(42).Kind)
	assert.True(t, h.session(t, 0).closed)

	notes, delivered, _ := h.sink.snapshot()
	assert.Empty(t, delivered)
	assert.NotContains(t, notes, messages.JobCrashed(context.Canceled))
}

func TestStopLetsRunningJobFinishWithinGrace(t *testing.T) {
	h := newHarness(t, nil)
	h.sched.cfg.LicenseDelay = 100 * time.Millisecond
	h.sched.cfg.ShutdownGrace = 5 * time.Second
	h.subscribe(t, 42)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL})

	h.sched.Start()
	require.Eventually(t, func() bool {
		return h.queue.Status(42).Phase == PhaseWaitLicense
	}, 5*time.Second, 5*time.Millisecond)

	start := time.Now()
	h.sched.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)

	_, delivered, _ := h.sink.snapshot()
	assert.Len(t, delivered, 2)
	assert.Equal(t, types.StatusIdle, h.queue.Status(42).Kind)
}

func TestStopGivesUpOnStuckJob(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(fs *fakeSession) { fs.block = release })
	h.sched.cfg.ShutdownTimeout = 20 * time.Millisecond
	h.subscribe(t, 42)
	h.admit(t, types.Job{UserID: 42, ChatID: 100, URL: resourceURL})

	h.sched.Start()
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.sessions) == 1
	}, 5*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		h.sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a job that ignores cancellation")
	}

	close(release)
	h.waitIdle(t, 42)
}

func TestCleanupOldFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	userDir := filepath.Join(dir, "user_42")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	old := filepath.Join(userDir, "old.zip")
	fresh := filepath.Join(userDir, "fresh.zip")
	require.NoError(t, os.WriteFile(old, make([]byte, 2048), 0o644))
	require.NoError(t, os.WriteFile(fresh, make([]byte, 10), 0o644))
	require.NoError(t, os.Chtimes(old, now.Add(-8*24*time.Hour), now.Add(-8*24*time.Hour)))
	require.NoError(t, os.Chtimes(fresh, now.Add(-time.Hour), now.Add(-time.Hour)))

	count, freed := CleanupOldFiles(dir, 7*24*time.Hour, now)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(2048), freed)

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)

	count, _ = CleanupOldFiles(filepath.Join(dir, "missing"), time.Hour, now)
	assert.Equal(t, 0, count)
}
