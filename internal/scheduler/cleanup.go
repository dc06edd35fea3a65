package scheduler

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"
)

func (s *Scheduler) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.intake.Done():
			return
		case <-ticker.C:
			CleanupOldFiles(s.cfg.DownloadDir, s.cfg.CleanupMaxAge, s.now())
		}
	}
}

// CleanupOldFiles removes regular files under dir last modified more than
// maxAge before now. It returns how many files were removed and their
// total size.
func CleanupOldFiles(dir string, maxAge time.Duration, now time.Time) (int, int64) {
	cutoff := now.Add(-maxAge)
	count := 0
	var freed int64

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			log.Printf("Cleanup: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Printf("Cleanup: failed to delete old file %s: %v", path, err)
			return nil
		}
		count++
		freed += info.Size()
		return nil
	})
	if err != nil {
		log.Printf("Cleanup: error during file cleanup: %v", err)
	}

	if count > 0 {
		log.Printf("Cleanup: Removed %d old files, freed %.2f MB", count, float64(freed)/(1024*1024))
	}
	return count, freed
}
