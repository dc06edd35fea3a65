package monitor

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"runtime"
	"time"
)

const DefaultInterval = 300 * time.Second

type Stats struct {
	Goroutines    int
	DownloadBytes int64
	ReceiptFiles  int
	ReceiptBytes  int64
}

// Monitor periodically logs resource usage of the download directory and
// the process.
type Monitor struct {
	downloadDir string
	receiptsDir string
	interval    time.Duration
	now         func() time.Time
}

func New(downloadDir, receiptsSubdir string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		downloadDir: downloadDir,
		receiptsDir: filepath.Join(downloadDir, receiptsSubdir),
		interval:    interval,
		now:         time.Now,
	}
}

// Run logs once immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.logStats(m.Collect())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) Collect() Stats {
	st := Stats{Goroutines: runtime.NumGoroutine()}
	_, st.DownloadBytes = dirUsage(m.downloadDir)
	st.ReceiptFiles, st.ReceiptBytes = dirUsage(m.receiptsDir)
	return st
}

func (m *Monitor) logStats(st Stats) {
	log.Printf("[MONITOR] Time: %s, Goroutines: %d, Downloads dir size: %.2f MB, Payment receipts: %d files (%.2f MB)",
		m.now().Format("2006-01-02 15:04:05"), st.Goroutines, MB(st.DownloadBytes), st.ReceiptFiles, MB(st.ReceiptBytes))
}

// dirUsage counts regular files under dir and their total size. A missing
// directory counts as empty.
func dirUsage(dir string) (int, int64) {
	var (
		count int
		size  int64
	)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		count++
		size += info.Size()
		return nil
	})
	return count, size
}

func MB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
