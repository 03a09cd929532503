// internal/browser/session.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/pagesmith/api/schemas"
	"github.com/xkilldash9x/pagesmith/internal/config"
)

// Manager owns the one shared browser/page pair. It is the single acquire
// point for every stateful tool: launch (with bounded retry), age-based
// recycling, page liveness probing, disconnect recovery and teardown all
// live here.
//
// Only the lifecycle bookkeeping is synchronized. Tool execution against
// the page deliberately is not: concurrent invocations interleave against
// the same page, exactly as the underlying single engine connection
// serializes them. That is an accepted limitation of the one-session
// design, not an oversight.
type Manager struct {
	logger   *zap.Logger
	cfg      config.BrowserConfig
	provider schemas.Provider

	mu         sync.Mutex
	browser    schemas.Browser
	page       schemas.Page
	sessionID  string
	launchedAt time.Time
	retryCount int
	// available flips to false only when launch retries were exhausted;
	// it guards against hammering a dead engine on every call.
	available bool
	shutdown  bool

	launchGroup singleflight.Group

	// Test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates the session manager. The browser is launched lazily
// on the first operation that needs a page.
func NewManager(provider schemas.Provider, cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger:    logger.Named("session_manager"),
		cfg:       cfg,
		provider:  provider,
		available: true,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchDelays returns the backoff schedule between launch attempts:
// exponential, doubling from the configured base, capped.
func launchDelays(base, ceiling time.Duration, attempts int) []time.Duration {
	delays := make([]time.Duration, 0, attempts-1)
	d := base
	for i := 0; i < attempts-1; i++ {
		if d > ceiling {
			d = ceiling
		}
		delays = append(delays, d)
		d *= 2
	}
	return delays
}

// EnsureSession guarantees a live browser handle, launching or recycling
// as needed. Idempotent; concurrent callers share one launch.
func (m *Manager) EnsureSession(ctx context.Context) error {
	_, err, _ := m.launchGroup.Do("launch", func() (interface{}, error) {
		return nil, m.ensureSessionLocked(ctx)
	})
	return err
}

func (m *Manager) ensureSessionLocked(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return schemas.NewToolError(schemas.CodeUnavailable, "session manager is shut down")
	}
	if !m.available {
		m.mu.Unlock()
		return schemas.NewToolError(schemas.CodeUnavailable,
			"browser session is unavailable after exhausting launch retries",
			"call close_browser and retry to reset the session, or check the browser runtime")
	}
	browser := m.browser
	stale := browser != nil && m.now().Sub(m.launchedAt) > m.cfg.MaxSessionAge
	m.mu.Unlock()

	if browser != nil && browser.IsConnected() && !stale {
		return nil
	}

	if browser != nil {
		reason := "disconnected"
		if stale {
			reason = "stale"
		}
		m.logger.Info("Recycling browser session.", zap.String("reason", reason))
		m.teardown(ctx)
	}

	return m.launch(ctx)
}

// launch runs the bounded retry loop. An explicit loop, not recursion: the
// backoff schedule is computed up front and the attempt count is hard.
func (m *Manager) launch(ctx context.Context) error {
	delays := launchDelays(m.cfg.LaunchBackoff, m.cfg.LaunchCap, m.cfg.LaunchAttempts)

	var lastErr error
	for attempt := 1; attempt <= m.cfg.LaunchAttempts; attempt++ {
		m.mu.Lock()
		m.retryCount = attempt - 1
		m.mu.Unlock()

		browser, err := m.provider.Launch(ctx, schemas.LaunchOptions{
			Headless: m.cfg.Headless,
			Args:     m.cfg.Args,
			Timeout:  m.cfg.LaunchTimeout,
		})
		if err == nil {
			m.adopt(browser)
			m.logger.Info("Browser session launched.", zap.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		m.logger.Warn("Browser launch attempt failed.", zap.Int("attempt", attempt), zap.Error(err))

		if attempt < m.cfg.LaunchAttempts {
			if sleepErr := m.sleep(ctx, delays[attempt-1]); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	m.mu.Lock()
	m.available = false
	m.mu.Unlock()
	m.logger.Error("Browser launch retries exhausted.", zap.Error(lastErr))
	return schemas.WrapToolError(schemas.CodeUnavailable, lastErr,
		"failed to establish a browser session after repeated attempts",
		"check that the browser runtime is installed and the host has enough memory")
}

// adopt installs a freshly launched browser and resets the failure state.
func (m *Manager) adopt(browser schemas.Browser) {
	m.mu.Lock()
	m.browser = browser
	m.page = nil
	m.sessionID = uuid.New().String()
	m.launchedAt = m.now()
	m.retryCount = 0
	m.available = true
	m.mu.Unlock()

	browser.OnDisconnected(func() {
		m.handleDisconnect(browser)
	})
}

// handleDisconnect nulls the cached handles immediately so the next
// EnsureSession relaunches instead of operating on a dead handle.
func (m *Manager) handleDisconnect(from schemas.Browser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != from {
		// A late event from an already replaced browser.
		return
	}
	m.logger.Warn("Browser disconnected; invalidating cached handles.")
	m.browser = nil
	m.page = nil
}

// Page returns a live page handle, creating the session and page as
// needed. The cached page is validated with a cheap liveness probe and
// recreated with bounded, linearly backed-off retries when it fails.
func (m *Manager) Page(ctx context.Context) (schemas.Page, error) {
	if err := m.EnsureSession(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	browser := m.browser
	page := m.page
	m.mu.Unlock()

	if browser == nil {
		// Invalidated between EnsureSession and here; retryable.
		return nil, schemas.NewToolError(schemas.CodeUnavailable,
			"browser session was invalidated mid-operation", "retry the operation")
	}

	if page != nil {
		if _, err := page.URL(); err == nil {
			return page, nil
		}
		m.logger.Debug("Page liveness probe failed; recreating page.")
		_ = page.Close(ctx)
		m.mu.Lock()
		if m.page == page {
			m.page = nil
		}
		m.mu.Unlock()
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.PageAttempts; attempt++ {
		fresh, err := browser.NewPage(ctx)
		if err == nil {
			fresh.SetDefaultTimeout(m.cfg.OperationTimeout)
			m.mu.Lock()
			if m.browser != browser {
				m.mu.Unlock()
				_ = fresh.Close(ctx)
				return nil, schemas.NewToolError(schemas.CodeUnavailable,
					"browser session was recycled mid-operation", "retry the operation")
			}
			m.page = fresh
			m.mu.Unlock()
			return fresh, nil
		}
		lastErr = err
		m.logger.Warn("Page creation attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < m.cfg.PageAttempts {
			if sleepErr := m.sleep(ctx, time.Duration(attempt)*m.cfg.PageBackoff); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, schemas.WrapToolError(schemas.CodeUnavailable, lastErr,
		"failed to obtain a usable page from the browser session")
}

// Close tears down the current session. Idempotent and safe with no
// active session; the next stateful operation launches a fresh one.
// An explicit close also clears the unavailable latch left by exhausted
// launch retries, so it is the documented recovery path.
func (m *Manager) Close(ctx context.Context) error {
	m.teardown(ctx)
	m.mu.Lock()
	if !m.shutdown {
		m.available = true
		m.retryCount = 0
	}
	m.mu.Unlock()
	return nil
}

// Shutdown closes the session and permanently retires the manager.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	m.teardown(ctx)
	m.logger.Info("Session manager shut down.")
	return nil
}

func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	browser := m.browser
	page := m.page
	m.browser = nil
	m.page = nil
	m.mu.Unlock()

	if page != nil {
		if err := page.Close(ctx); err != nil {
			m.logger.Debug("Error closing page during teardown.", zap.Error(err))
		}
	}
	if browser != nil {
		if err := browser.Close(ctx); err != nil {
			m.logger.Debug("Error closing browser during teardown.", zap.Error(err))
		}
	}
}

// Status snapshots the session state for the browser_health tool.
func (m *Manager) Status() schemas.SessionStatus {
	m.mu.Lock()
	browser := m.browser
	page := m.page
	status := schemas.SessionStatus{
		Available:  m.available && !m.shutdown,
		Active:     browser != nil,
		RetryCount: m.retryCount,
	}
	if browser != nil {
		status.LaunchedAt = m.launchedAt
		status.AgeSeconds = m.now().Sub(m.launchedAt).Seconds()
	}
	m.mu.Unlock()

	if browser != nil {
		status.Connected = browser.IsConnected()
	}
	if page != nil {
		if url, err := page.URL(); err == nil {
			status.CurrentURL = url
		}
	}
	return status
}

// recycleIfStale tears down a session past its age limit so the next
// acquire launches fresh. Returns whether a teardown happened.
func (m *Manager) recycleIfStale(ctx context.Context) bool {
	m.mu.Lock()
	browser := m.browser
	page := m.page
	stale := browser != nil && m.now().Sub(m.launchedAt) > m.cfg.MaxSessionAge
	if stale {
		m.browser = nil
		m.page = nil
	}
	m.mu.Unlock()
	if !stale {
		return false
	}

	m.logger.Info("Recycling stale browser session pre-emptively.")
	if page != nil {
		_ = page.Close(ctx)
	}
	_ = browser.Close(ctx)
	return true
}

// RunHeartbeat periodically logs a state snapshot, retiring any session
// past its age limit, until ctx is cancelled. It takes the lifecycle lock
// only for bookkeeping and never launches, so request handling is never
// blocked behind it.
func (m *Manager) RunHeartbeat(ctx context.Context) {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.recycleIfStale(ctx)
			s := m.Status()
			m.logger.Debug("Session heartbeat.",
				zap.Bool("available", s.Available),
				zap.Bool("active", s.Active),
				zap.Bool("connected", s.Connected),
				zap.Float64("age_seconds", s.AgeSeconds),
				zap.Int("retry_count", s.RetryCount))
		}
	}
}

// ResetClock is a test hook overriding the time source.
func (m *Manager) ResetClock(now func() time.Time, sleep func(context.Context, time.Duration) error) {
	if now != nil {
		m.now = now
	}
	if sleep != nil {
		m.sleep = sleep
	}
}
