package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/internal/delivery"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/reporting"
	"github.com/BatmanBruc/bat-bot-freepik/internal/session"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

const (
	PhaseLoggingIn     = "Logging in..."
	PhaseResource      = "Downloading resource..."
	PhaseWaitLicense   = "Waiting for license to be available..."
	PhaseLicense       = "Downloading license..."
	PhaseUploading     = "Uploading files to Telegram..."
	licensePlaceholder = "dummy_path"
)

// Session is one browser session, used for a single job and then closed.
type Session interface {
	Authenticate(ctx context.Context) error
	FetchResource(ctx context.Context, url string) (string, error)
	FetchLicense(ctx context.Context, resourceName string) (string, error)
	ResourceName() string
	Close() error
}

// SessionFactory opens a Session for job. onPhase receives status text the
// session wants to show while it works.
type SessionFactory func(job types.Job, onPhase func(string)) Session

// Sink talks to the chat the job came from.
type Sink interface {
	Notify(ctx context.Context, chatID int64, text string) error
	Deliver(ctx context.Context, chatID int64, files []types.DeliveryFile) error
	OfferLicense(ctx context.Context, job types.Job) error
}

type Queue interface {
	Dequeue(ctx context.Context) (types.Job, error)
	SetPhase(userID int64, phase string)
	Finish(userID int64)
}

type DownloadRecorder interface {
	RecordDownload(ctx context.Context, d types.Download) (*types.Download, error)
}

type Config struct {
	// LicenseDelay is how long the site needs before a fresh download's
	// license appears in the history.
	LicenseDelay time.Duration
	JobTimeout   time.Duration
	ErrorBackoff time.Duration

	DownloadDir     string
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration

	// ShutdownGrace is how long Stop lets the running job continue before
	// cancelling it. ShutdownTimeout bounds the wait after cancelling.
	ShutdownGrace   time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.LicenseDelay <= 0 {
		c.LicenseDelay = 180 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Minute
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 10 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 24 * time.Hour
	}
	if c.CleanupMaxAge <= 0 {
		c.CleanupMaxAge = 7 * 24 * time.Hour
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 3 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Scheduler is the single consumer of the download queue. Only one job is
// in flight at a time because the browser session cannot be shared.
type Scheduler struct {
	queue      Queue
	newSession SessionFactory
	sink       Sink
	downloads  DownloadRecorder
	cfg        Config
	now        func() time.Time

	// intake stops dequeuing, ctx cancels the running job
	intake  context.Context
	quit    context.CancelFunc
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewScheduler(q Queue, newSession SessionFactory, sink Sink, downloads DownloadRecorder, config Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	intake, quit := context.WithCancel(ctx)
	return &Scheduler{
		queue:      q,
		newSession: newSession,
		sink:       sink,
		downloads:  downloads,
		cfg:        config.withDefaults(),
		now:        time.Now,
		intake:     intake,
		quit:       quit,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("Scheduler started")

	s.wg.Add(1)
	go s.worker()

	if s.cfg.DownloadDir != "" {
		s.wg.Add(1)
		go s.cleanupLoop()
	}
}

// Stop takes no new jobs, gives the running one ShutdownGrace to finish,
// then cancels it and waits at most ShutdownTimeout for the worker.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Println("Stopping scheduler...")
	s.quit()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		log.Println("Scheduler stopped")
		return
	case <-time.After(s.cfg.ShutdownGrace):
	}

	log.Printf("Scheduler: job still running after %s, cancelling it", s.cfg.ShutdownGrace)
	s.cancel()
	select {
	case <-done:
		log.Println("Scheduler stopped")
	case <-time.After(s.cfg.ShutdownTimeout):
		log.Printf("Scheduler: worker did not stop within %s, exiting anyway", s.cfg.ShutdownTimeout)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	log.Printf("Worker: download queue processor started")
	for {
		err := s.next()
		if s.intake.Err() != nil {
			log.Printf("Worker: download queue processor shutting down")
			return
		}
		if err == nil {
			continue
		}
		reporting.CaptureError(err, "Worker: error in queue processor")
		select {
		case <-s.intake.Done():
			return
		case <-time.After(s.cfg.ErrorBackoff):
		}
	}
}

// next takes one job off the queue and processes it. A panic that escapes
// the job is turned into an error so the loop can back off and continue.
func (s *Scheduler) next() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue processor panic: %v", r)
		}
	}()

	job, err := s.queue.Dequeue(s.intake)
	if err != nil {
		return err
	}
	s.process(job)
	return nil
}

func (s *Scheduler) process(job types.Job) {
	var files []string
	sess := s.newSession(job, func(phase string) { s.queue.SetPhase(job.UserID, phase) })

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			reporting.CaptureUserError(err, job.UserID, "Worker: job crashed")
			s.notify(job.ChatID, messages.JobCrashed(err))
		}
		if err := sess.Close(); err != nil {
			log.Printf("Worker: error closing browser session for user %d: %v", job.UserID, err)
		}
		removeFiles(files)
		s.queue.Finish(job.UserID)
		log.Printf("Worker: finished processing download for user %d", job.UserID)
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()

	if err := s.run(ctx, job, sess, &files); err != nil {
		s.fail(job, err)
	}
}

func (s *Scheduler) run(ctx context.Context, job types.Job, sess Session, files *[]string) error {
	phase := func(p string) { s.queue.SetPhase(job.UserID, p) }

	if job.LicenseOnly {
		phase(PhaseLicense)
		log.Printf("Worker: license-only job %s for user %d", job.ID, job.UserID)
	} else {
		log.Printf("Worker: job %s for user %d: %s", job.ID, job.UserID, job.URL)
		s.notify(job.ChatID, messages.DownloadStarting(job.URL))
	}

	phase(PhaseLoggingIn)
	if err := sess.Authenticate(ctx); err != nil {
		return err
	}

	resource := ""
	resourceName := job.ResourceName
	if !job.LicenseOnly {
		phase(PhaseResource)
		path, err := sess.FetchResource(ctx, job.URL)
		if err != nil {
			return err
		}
		resource = path
		*files = append(*files, path)
		resourceName = sess.ResourceName()
		s.record(ctx, job, path)

		phase(PhaseWaitLicense)
		s.notify(job.ChatID, messages.ResourceDownloaded())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.LicenseDelay):
		}
	}
	if resourceName == "" {
		resourceName = licensePlaceholder
	}

	phase(PhaseLicense)
	license, err := sess.FetchLicense(ctx, resourceName)
	switch {
	case err == nil:
		*files = append(*files, license)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		log.Printf("Worker: license for user %d not obtained: %v", job.UserID, err)
	}

	phase(PhaseUploading)
	job.ResourceName = resourceName
	s.deliver(ctx, job, resource, license)
	return nil
}

// record writes the download audit entry. Failures are logged and ignored.
func (s *Scheduler) record(ctx context.Context, job types.Job, path string) {
	if s.downloads == nil {
		return
	}
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	_, err := s.downloads.RecordDownload(ctx, types.Download{
		UserID:    job.UserID,
		Service:   job.Service,
		URL:       job.URL,
		FileName:  filepath.Base(path),
		Size:      size,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		log.Printf("Worker: error recording download for user %d: %v", job.UserID, err)
		return
	}
	log.Printf("Worker: recorded download for user %d", job.UserID)
}

func (s *Scheduler) deliver(ctx context.Context, job types.Job, resource, license string) {
	var batch []types.DeliveryFile
	if resource != "" {
		batch = append(batch, types.DeliveryFile{Path: resource})
	}
	if license != "" {
		batch = append(batch, types.DeliveryFile{Path: license, License: true})
	}

	if len(batch) == 0 {
		if job.LicenseOnly {
			s.notify(job.ChatID, messages.LicenseFailed())
		} else {
			s.notify(job.ChatID, messages.NoFilesDownloaded())
		}
		return
	}

	if err := s.sink.Deliver(ctx, job.ChatID, batch); err != nil {
		log.Printf("Worker: delivery to chat %d failed: %v", job.ChatID, err)
		var de *delivery.Error
		switch {
		case errors.As(err, &de) && de.Timeout:
			s.notify(job.ChatID, messages.UploadTimedOut())
		case job.LicenseOnly:
			s.notify(job.ChatID, messages.LicenseUploadFailed())
		default:
			s.notify(job.ChatID, messages.UploadFailed())
		}
		return
	}

	switch {
	case job.LicenseOnly:
		s.notify(job.ChatID, messages.LicenseDownloaded())
	case license == "":
		if err := s.sink.OfferLicense(ctx, job); err != nil {
			log.Printf("Worker: failed to offer license to chat %d: %v", job.ChatID, err)
		}
	}
}

// fail tells the user why the job stopped.
func (s *Scheduler) fail(job types.Job, err error) {
	if s.ctx.Err() != nil {
		log.Printf("Worker: job %s for user %d interrupted by shutdown", job.ID, job.UserID)
		return
	}

	var se *session.Error
	if errors.As(err, &se) {
		log.Printf("Worker: job %s for user %d failed: %v", job.ID, job.UserID, err)
		s.notify(job.ChatID, sessionFailureText(se))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("download did not finish within %s", s.cfg.JobTimeout)
	}
	reporting.CaptureUserError(err, job.UserID, "Worker: error processing download")
	s.notify(job.ChatID, messages.JobCrashed(err))
}

func sessionFailureText(e *session.Error) string {
	switch e.Kind {
	case session.KindLoginFailed:
		return messages.LoginFailed()
	case session.KindCaptchaFailed:
		return messages.CaptchaFailed()
	case session.KindAccessDenied:
		if e.Reason == session.ReasonSearchedSimilar {
			return messages.AccessDeniedSearched()
		}
		return messages.AccessDenied()
	case session.KindDownloadButtonNotFound:
		return messages.DownloadButtonNotFound()
	case session.KindDownloadDidNotStart:
		return messages.DownloadDidNotStart()
	case session.KindLicenseNotFound:
		return messages.LicenseFailed()
	}
	return messages.JobCrashed(e)
}

// notify sends text on its own deadline so a cancelled job can still
// report.
func (s *Scheduler) notify(chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.sink.Notify(ctx, chatID, text); err != nil {
		log.Printf("Worker: failed to send message to chat %d: %v", chatID, err)
	}
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("Worker: error removing file %s: %v", p, err)
		}
	}
}
