package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/proofmark/proofmark/pkg/fingerprint"
)

// ErrNotComputed is returned by Current before the first successful refresh.
var ErrNotComputed = errors.New("watch: fingerprint not computed yet")

// ChangeFunc is called after a refresh yields a different fingerprint.
type ChangeFunc func(old, current fingerprint.Fingerprint)

// Tracker holds the latest fingerprint of a directory and recomputes it
// after bursts of file events settle.
type Tracker struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger

	mu         sync.RWMutex
	current    fingerprint.Fingerprint
	computed   bool
	computedAt time.Time
	lastErr    error
	onChange   ChangeFunc
}

// NewTracker creates a Tracker for root. A nil logger uses slog.Default().
func NewTracker(root string, debounce time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{root: root, debounce: debounce, logger: logger}
}

// OnChange registers fn to run after the fingerprint changes.
func (t *Tracker) OnChange(fn ChangeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Current returns the last computed fingerprint and when it was computed.
// If the latest refresh failed, its error is returned alongside the last
// good value.
func (t *Tracker) Current() (fingerprint.Fingerprint, time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.computed {
		if t.lastErr != nil {
			return fingerprint.Fingerprint{}, time.Time{}, t.lastErr
		}
		return fingerprint.Fingerprint{}, time.Time{}, ErrNotComputed
	}
	return t.current, t.computedAt, t.lastErr
}

// Refresh recomputes the fingerprint now.
func (t *Tracker) Refresh() (fingerprint.Fingerprint, error) {
	fp, err := fingerprint.Compute(t.root)

	t.mu.Lock()
	if err != nil {
		t.lastErr = err
		t.mu.Unlock()
		t.logger.Warn("fingerprint failed", "dir", t.root, "error", err)
		return fingerprint.Fingerprint{}, err
	}

	old, hadOld := t.current, t.computed
	t.current = fp
	t.computed = true
	t.computedAt = time.Now()
	t.lastErr = nil
	onChange := t.onChange
	t.mu.Unlock()

	switch {
	case !hadOld:
		t.logger.Info("circuit fingerprint computed", "dir", t.root, "fingerprint", fp.String())
	case old != fp:
		t.logger.Info("circuit fingerprint changed", "dir", t.root, "old", old.String(), "new", fp.String())
		if onChange != nil {
			onChange(old, fp)
		}
	default:
		t.logger.Debug("circuit fingerprint unchanged", "dir", t.root)
	}
	return fp, nil
}

// Run consumes events and refreshes once no event has arrived for the
// debounce interval. It returns when ctx is cancelled or events is closed.
func (t *Tracker) Run(ctx context.Context, events <-chan FileEvent) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.logger.Debug("target changed", "path", ev.Path, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(t.debounce)
			} else {
				timer.Reset(t.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			t.Refresh()
		}
	}
}
