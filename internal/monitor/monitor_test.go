package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "42", "photo.jpg"), 1000)
	writeFile(t, filepath.Join(dir, "payment_receipts", "payment_receipt_1.jpg"), 300)
	writeFile(t, filepath.Join(dir, "payment_receipts", "payment_receipt_2.jpg"), 200)

	st := New(dir, "payment_receipts", time.Minute).Collect()

	assert.Equal(t, int64(1500), st.DownloadBytes)
	assert.Equal(t, 2, st.ReceiptFiles)
	assert.Equal(t, int64(500), st.ReceiptBytes)
	assert.Positive(t, st.Goroutines)
}

func TestCollectMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "nope"), "payment_receipts", 0).Collect()
	assert.Zero(t, st.DownloadBytes)
	assert.Zero(t, st.ReceiptFiles)
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(t.TempDir(), "payment_receipts", time.Millisecond).Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMB(t *testing.T) {
	assert.InDelta(t, 1.5, MB(1536*1024), 0.0001)
}
