package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
	"github.com/xkilldash9x/pagesmith/internal/browser/browsertest"
	"github.com/xkilldash9x/pagesmith/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testBrowserConfig() config.BrowserConfig {
	return config.BrowserConfig{
		Headless:         true,
		LaunchAttempts:   3,
		LaunchBackoff:    time.Second,
		LaunchCap:        10 * time.Second,
		PageAttempts:     2,
		PageBackoff:      100 * time.Millisecond,
		MaxSessionAge:    30 * time.Minute,
		OperationTimeout: 5 * time.Second,
	}
}

// fakeClock drives the manager's time seams: sleeps record their duration
// and advance the clock instead of blocking.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func newTestManager(provider *browsertest.FakeProvider, cfg config.BrowserConfig) (*Manager, *fakeClock) {
	m := NewManager(provider, cfg, zap.NewNop())
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	m.ResetClock(clock.Now, clock.Sleep)
	return m, clock
}

func TestLaunchDelays(t *testing.T) {
	assert.Equal(t,
		[]time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second},
		launchDelays(time.Second, 10*time.Second, 5))
	assert.Equal(t,
		[]time.Duration{4 * time.Second, 5 * time.Second, 5 * time.Second},
		launchDelays(4*time.Second, 5*time.Second, 4))
	assert.Empty(t, launchDelays(time.Second, 10*time.Second, 1))
}

func TestLaunchRetriesWithBackoff(t *testing.T) {
	boom := errors.New("engine refused to start")
	provider := &browsertest.FakeProvider{LaunchErrs: []error{boom, boom, nil}}
	m, clock := newTestManager(provider, testBrowserConfig())

	require.NoError(t, m.EnsureSession(context.Background()))
	assert.Equal(t, 3, provider.LaunchCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.slept)

	// A successful adoption resets the retry counter.
	assert.Equal(t, 0, m.Status().RetryCount)
	assert.True(t, m.Status().Active)

	m.Close(context.Background())
}

func TestLaunchExhaustionMarksUnavailable(t *testing.T) {
	boom := errors.New("engine refused to start")
	provider := &browsertest.FakeProvider{LaunchErrs: []error{boom, boom, boom}}
	m, _ := newTestManager(provider, testBrowserConfig())

	err := m.EnsureSession(context.Background())
	require.Error(t, err)
	te, ok := schemas.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, schemas.CodeUnavailable, te.Code)
	assert.Equal(t, 3, provider.LaunchCount())

	// Subsequent calls fail fast without hammering the provider.
	err = m.EnsureSession(context.Background())
	require.Error(t, err)
	te, ok = schemas.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, schemas.CodeUnavailable, te.Code)
	assert.NotEmpty(t, te.Suggestions)
	assert.Equal(t, 3, provider.LaunchCount())
	assert.False(t, m.Status().Available)
}

func TestCloseResetsUnavailable(t *testing.T) {
	boom := errors.New("engine refused to start")
	provider := &browsertest.FakeProvider{LaunchErrs: []error{boom, boom, boom}}
	m, _ := newTestManager(provider, testBrowserConfig())

	require.Error(t, m.EnsureSession(context.Background()))
	assert.False(t, m.Status().Available)

	// The documented recovery path: an explicit close re-arms the
	// manager, and the next acquire re-enters the launch loop.
	require.NoError(t, m.Close(context.Background()))
	assert.True(t, m.Status().Available)

	require.NoError(t, m.EnsureSession(context.Background()))
	assert.Equal(t, 4, provider.LaunchCount())
	assert.True(t, m.Status().Active)

	m.Close(context.Background())
}

func TestStaleSessionIsRecycled(t *testing.T) {
	provider := &browsertest.FakeProvider{}
	cfg := testBrowserConfig()
	m, clock := newTestManager(provider, cfg)

	require.NoError(t, m.EnsureSession(context.Background()))
	first := provider.Browsers[0]

	clock.now = clock.now.Add(cfg.MaxSessionAge + time.Minute)
	require.NoError(t, m.EnsureSession(context.Background()))

	assert.Equal(t, 2, provider.LaunchCount())
	assert.True(t, first.Closed())
	assert.True(t, m.Status().Connected)

	m.Close(context.Background())
}

func TestRecycleIfStale(t *testing.T) {
	provider := &browsertest.FakeProvider{}
	cfg := testBrowserConfig()
	m, clock := newTestManager(provider, cfg)

	require.NoError(t, m.EnsureSession(context.Background()))
	assert.False(t, m.recycleIfStale(context.Background()), "a fresh session stays up")

	clock.now = clock.now.Add(cfg.MaxSessionAge + time.Second)
	assert.True(t, m.recycleIfStale(context.Background()))
	assert.True(t, provider.Browsers[0].Closed())
	assert.False(t, m.Status().Active)

	// Teardown only; the relaunch stays lazy.
	assert.Equal(t, 1, provider.LaunchCount())
}

func TestFreshSessionIsReused(t *testing.T) {
	provider := &browsertest.FakeProvider{}
	m, _ := newTestManager(provider, testBrowserConfig())

	require.NoError(t, m.EnsureSession(context.Background()))
	require.NoError(t, m.EnsureSession(context.Background()))
	assert.Equal(t, 1, provider.LaunchCount())

	m.Close(context.Background())
}

func TestDisconnectInvalidatesHandles(t *testing.T) {
	provider := &browsertest.FakeProvider{}
	m, _ := newTestManager(provider, testBrowserConfig())

	require.NoError(t, m.EnsureSession(context.Background()))
	provider.Browsers[0].FireDisconnect()

	assert.False(t, m.Status().Active)

	require.NoError(t, m.EnsureSession(context.Background()))
	assert.Equal(t, 2, provider.LaunchCount())

	m.Close(context.Background())
}

func TestCloseIsIdempotent(t *testing.T) {
	provider := &browsertest.FakeProvider{}
	m, _ := newTestManager(provider, testBrowserConfig())

	// Close with no session is a no-op.
	require.NoError(t, m.Close(context.Background()))
	assert.Zero(t, provider.LaunchCount())

	require.NoError(t, m.EnsureSession(context.Background()))
	require.NoError(t, m.Close(context.Background()))
	require.NoError(t, m.Close(context.Background()))
	assert.True(t, provider.Browsers[0].Closed())

	// The session relaunches lazily after a close.
	require.NoError(t, m.EnsureSession(context.Background()))
	assert.Equal(t, 2, provider.LaunchCount())
	m.Close(context.Background())
}

func TestShutdownIsPermanent(t *testing.T) {
	provider := &browsertest.FakeProvider{}
	m, _ := newTestManager(provider, testBrowserConfig())

	require.NoError(t, m.EnsureSession(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.EnsureSession(context.Background())
	require.Error(t, err)
	te, ok := schemas.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, schemas.CodeUnavailable, te.Code)
	assert.Equal(t, 1, provider.LaunchCount())
}

func TestPageAppliesDefaultTimeout(t *testing.T) {
	page := browsertest.NewFakePage()
	provider := &browsertest.FakeProvider{NextPage: page}
	cfg := testBrowserConfig()
	m, _ := newTestManager(provider, cfg)

	got, err := m.Page(context.Background())
	require.NoError(t, err)
	assert.Same(t, page, got.(*browsertest.FakePage))
	assert.Equal(t, cfg.OperationTimeout, page.DefaultTimeout)

	m.Close(context.Background())
}

func TestPageRecreatedAfterProbeFailure(t *testing.T) {
	page := browsertest.NewFakePage()
	provider := &browsertest.FakeProvider{NextPage: page}
	m, _ := newTestManager(provider, testBrowserConfig())

	_, err := m.Page(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.Browsers[0].PagesMade)

	// Kill the cached page; the next acquire probes, closes and recreates.
	page.URLErr = errors.New("target closed")
	_, err = m.Page(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, page.CloseCount)
	assert.Equal(t, 2, provider.Browsers[0].PagesMade)

	m.Close(context.Background())
}

func TestPageCreationRetries(t *testing.T) {
	provider := &browsertest.FakeProvider{}
	m, clock := newTestManager(provider, testBrowserConfig())

	require.NoError(t, m.EnsureSession(context.Background()))
	provider.Browsers[0].NewPageErrs = []error{errors.New("no contexts left"), nil}

	_, err := m.Page(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, provider.Browsers[0].PagesMade)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clock.slept)

	m.Close(context.Background())
}

func TestStatusSnapshot(t *testing.T) {
	page := browsertest.NewFakePage()
	page.URLValue = "https://example.com/dash"
	provider := &browsertest.FakeProvider{NextPage: page}
	cfg := testBrowserConfig()
	m, clock := newTestManager(provider, cfg)

	s := m.Status()
	assert.True(t, s.Available)
	assert.False(t, s.Active)

	_, err := m.Page(context.Background())
	require.NoError(t, err)
	clock.now = clock.now.Add(90 * time.Second)

	s = m.Status()
	assert.True(t, s.Active)
	assert.True(t, s.Connected)
	assert.Equal(t, 90.0, s.AgeSeconds)
	assert.Equal(t, "https://example.com/dash", s.CurrentURL)

	m.Close(context.Background())
}
