// Package cancel implements request cancellation. Within one process a
// request is cancelled through its context; the filesystem token protocol
// exists for the case where the cancel endpoint is served by a different
// process instance sharing the token directory.
package cancel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultPollInterval keeps end-to-end cancellation latency around one
// second or less.
const defaultPollInterval = 500 * time.Millisecond

// Registry manages cancellation token files for in-flight requests.
type Registry struct {
	dir          string
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRegistry creates the token directory if needed and returns a Registry.
func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cancel token directory: %w", err)
	}
	return &Registry{
		dir:          dir,
		pollInterval: defaultPollInterval,
		logger:       logger.With("component", "cancel"),
	}, nil
}

// tokenPath maps a request ID to its token file. IDs are sanitized to a
// filename-safe alphabet so a crafted ID can never escape the directory.
func (r *Registry) tokenPath(requestID string) string {
	safe := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		}
		return '_'
	}, requestID)
	return filepath.Join(r.dir, safe+".cancel")
}

// Cancel marks a request as cancelled by dropping its token file.
func (r *Registry) Cancel(requestID string) error {
	path := r.tokenPath(requestID)
	if err := os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("failed to write cancel token: %w", err)
	}
	r.logger.Info("Cancellation requested", "request_id", requestID)
	return nil
}

// IsCancelled reports whether a cancel token exists for the request.
func (r *Registry) IsCancelled(requestID string) bool {
	_, err := os.Stat(r.tokenPath(requestID))
	return err == nil
}

// Clear removes the request's token file. Safe to call when none exists.
func (r *Registry) Clear(requestID string) {
	if err := os.Remove(r.tokenPath(requestID)); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("Failed to remove cancel token", "request_id", requestID, "error", err)
	}
}

// Watch derives a context that is cancelled when the request's token file
// appears. The returned stop function must be called at request end; it
// stops the poller and removes any leftover token.
func (r *Registry) Watch(ctx context.Context, requestID string) (context.Context, context.CancelFunc) {
	watchCtx, cancelFn := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				if r.IsCancelled(requestID) {
					r.logger.Info("Cancel token observed, cancelling request",
						"request_id", requestID)
					cancelFn()
					return
				}
			}
		}
	}()

	stop := func() {
		cancelFn()
		r.Clear(requestID)
	}
	return watchCtx, stop
}
