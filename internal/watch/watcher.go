package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Event is one file-change notification.
type Event struct {
	Path string
}

// Notifier delivers change events for the watched export directory. The
// production implementation below polls modification times; tests and other
// deployments can plug in anything that satisfies the interface.
type Notifier interface {
	Events() <-chan Event
	Run(ctx context.Context)
}

// WaitForFileReady blocks until the file's size has stopped changing for the
// quiet period, or the timeout elapses. The collection scripts write exports
// over SMB in several chunks; reading before the size quiesces yields a
// half-written CSV.
func WaitForFileReady(path string, quiet, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	var lastSize int64 = -1
	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if info.Size() == lastSize {
			time.Sleep(quiet)
			if again, err := os.Stat(path); err == nil && again.Size() == lastSize {
				return true
			}
		}
		lastSize = info.Size()
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// DirPoller is a polling Notifier over one directory (non-recursive). It
// emits an event when a file's mtime advances past what it last saw.
type DirPoller struct {
	dir      string
	interval time.Duration
	quiet    time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	events chan Event
	seen   map[string]time.Time
}

func NewDirPoller(dir string, interval, quiet, timeout time.Duration, logger *zap.Logger) *DirPoller {
	return &DirPoller{
		dir:      dir,
		interval: interval,
		quiet:    quiet,
		timeout:  timeout,
		logger:   logger,
		events:   make(chan Event, 16),
		seen:     make(map[string]time.Time),
	}
}

var _ Notifier = (*DirPoller)(nil)

func (p *DirPoller) Events() <-chan Event { return p.events }

// Run polls until the context is cancelled. Scan errors are logged and the
// loop continues; the watcher never takes the process down.
func (p *DirPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.events)

	// Prime the seen map so a restart does not replay every old export.
	p.scan(ctx, false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scan(ctx, true)
		}
	}
}

func (p *DirPoller) scan(ctx context.Context, emit bool) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		p.logger.Warn("Failed to scan watch directory", zap.String("dir", p.dir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(p.dir, entry.Name())
		last, known := p.seen[path]
		if known && !info.ModTime().After(last) {
			continue
		}
		p.seen[path] = info.ModTime()
		if !emit {
			continue
		}
		if !WaitForFileReady(path, p.quiet, p.timeout) {
			p.logger.Warn("File write timeout, skipping", zap.String("path", path))
			continue
		}
		select {
		case p.events <- Event{Path: path}:
		case <-ctx.Done():
			return
		}
	}
}
