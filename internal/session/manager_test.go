package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/veritasvoid/TradeZen/internal/errs"
)

// MockProvider is a mock implementation of the Provider interface.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) RequestToken(ctx context.Context, silent bool) (string, error) {
	args := m.Called(ctx, silent)
	return args.String(0), args.Error(1)
}

type memoryStore struct {
	mu    sync.Mutex
	token string
}

func (s *memoryStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memoryStore) SaveToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *memoryStore) ClearToken() error {
	return s.SaveToken("")
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeClock records scheduled timers so tests can fire them by hand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func setupManager(provider Provider, store CredentialStore) (*Manager, *fakeClock) {
	clock := &fakeClock{}
	m := NewManager(Options{
		Provider:  provider,
		Store:     store,
		Lifetime:  time.Hour,
		AfterFunc: clock.AfterFunc,
	})
	return m, clock
}

func TestSignIn_Interactive(t *testing.T) {
	// Arrange
	provider := new(MockProvider)
	provider.On("RequestToken", mock.Anything, false).Return("tok-1", nil).Once()
	store := &memoryStore{}
	m, clock := setupManager(provider, store)
	defer m.Close()

	// Act
	token, err := m.SignIn(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "tok-1", store.token)
	assert.True(t, m.SignedIn())
	active := clock.active()
	require.Len(t, active, 1)
	assert.Equal(t, 50*time.Minute, active[0].delay)
	provider.AssertExpectations(t)
}

func TestSignIn_ReusesCachedToken(t *testing.T) {
	provider := new(MockProvider)
	store := &memoryStore{token: "cached"}
	m, clock := setupManager(provider, store)
	defer m.Close()

	token, err := m.SignIn(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "cached", token)
	assert.Len(t, clock.active(), 1)
	provider.AssertNotCalled(t, "RequestToken", mock.Anything, mock.Anything)
}

func TestSignIn_Denied(t *testing.T) {
	provider := new(MockProvider)
	provider.On("RequestToken", mock.Anything, false).Return("", errs.ErrAuthDenied)
	m, clock := setupManager(provider, &memoryStore{})
	defer m.Close()

	_, err := m.SignIn(context.Background())

	assert.ErrorIs(t, err, errs.ErrAuthDenied)
	assert.False(t, m.SignedIn())
	assert.Empty(t, clock.active())
}

func TestSignIn_TwiceKeepsOneTimer(t *testing.T) {
	provider := new(MockProvider)
	provider.On("RequestToken", mock.Anything, false).Return("tok-1", nil).Once()
	m, clock := setupManager(provider, &memoryStore{})
	defer m.Close()

	_, err := m.SignIn(context.Background())
	require.NoError(t, err)
	_, err = m.SignIn(context.Background())
	require.NoError(t, err)
	m.ScheduleRenewal()

	assert.Len(t, clock.timers, 3)
	assert.Len(t, clock.active(), 1)
	assert.True(t, m.RenewalPending())
	provider.AssertExpectations(t)
}

func TestRenewal_FiresAndReschedules(t *testing.T) {
	provider := new(MockProvider)
	provider.On("RequestToken", mock.Anything, false).Return("tok-1", nil).Once()
	provider.On("RequestToken", mock.Anything, true).Return("tok-2", nil).Once()
	store := &memoryStore{}
	m, clock := setupManager(provider, store)
	defer m.Close()

	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	clock.active()[0].fn()

	token, err := m.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, "tok-2", store.token)
	assert.Len(t, clock.active(), 1)
	provider.AssertExpectations(t)
}

func TestRenewal_StaleTimerIgnored(t *testing.T) {
	provider := new(MockProvider)
	provider.On("RequestToken", mock.Anything, false).Return("tok-1", nil).Once()
	m, clock := setupManager(provider, &memoryStore{})
	defer m.Close()

	_, err := m.SignIn(context.Background())
	require.NoError(t, err)
	first := clock.timers[0]
	m.ScheduleRenewal()

	first.fn()

	provider.AssertNotCalled(t, "RequestToken", mock.Anything, true)
	assert.True(t, m.RenewalPending())
}

func TestRenewal_FailureSignsOut(t *testing.T) {
	provider := new(MockProvider)
	provider.On("RequestToken", mock.Anything, false).Return("tok-1", nil).Once()
	provider.On("RequestToken", mock.Anything, true).Return("", errs.ErrAuthDenied).Once()
	store := &memoryStore{}

	var expired error
	clock := &fakeClock{}
	m := NewManager(Options{
		Provider:  provider,
		Store:     store,
		Lifetime:  time.Hour,
		AfterFunc: clock.AfterFunc,
		OnExpired: func(err error) { expired = err },
	})
	defer m.Close()

	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	clock.active()[0].fn()

	assert.False(t, m.SignedIn())
	assert.False(t, m.RenewalPending())
	assert.Empty(t, store.token)
	assert.ErrorIs(t, expired, errs.ErrAuthDenied)
	_, err = m.AccessToken()
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestSignOut(t *testing.T) {
	provider := new(MockProvider)
	provider.On("RequestToken", mock.Anything, false).Return("tok-1", nil).Once()
	store := &memoryStore{}
	m, clock := setupManager(provider, store)
	defer m.Close()

	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	m.SignOut()

	assert.False(t, m.SignedIn())
	assert.Empty(t, clock.active())
	assert.Empty(t, store.token)
}

func TestInitialize_SharedRun(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	m := NewManager(Options{
		Provider: new(MockProvider),
		Store:    &memoryStore{},
		Loader: func(ctx context.Context) error {
			calls.Add(1)
			<-release
			return nil
		},
	})
	defer m.Close()

	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Initialize(context.Background())
		}(i)
	}
	// Give the callers time to queue behind the first run.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestInitialize_RetryAfterFailure(t *testing.T) {
	var calls int
	m := NewManager(Options{
		Provider: new(MockProvider),
		Store:    &memoryStore{},
		Loader: func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("network down")
			}
			return nil
		},
	})
	defer m.Close()

	assert.Error(t, m.Initialize(context.Background()))
	assert.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestProbe_RenewsOnUnauthenticated(t *testing.T) {
	provider := new(MockProvider)
	provider.On("RequestToken", mock.Anything, true).Return("fresh", nil).Once()
	m, _ := setupManager(provider, &memoryStore{token: "stale"})
	defer m.Close()
	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	var seen []string
	probe := func(ctx context.Context) error {
		token, _ := m.AccessToken()
		seen = append(seen, token)
		if token == "stale" {
			return errs.ErrUnauthenticated
		}
		return nil
	}

	require.NoError(t, m.Probe(context.Background(), probe))
	assert.Equal(t, []string{"stale", "fresh"}, seen)
	provider.AssertExpectations(t)
}

func TestProbe_PassesThroughOtherErrors(t *testing.T) {
	provider := new(MockProvider)
	m, _ := setupManager(provider, &memoryStore{token: "tok"})
	defer m.Close()
	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	err = m.Probe(context.Background(), func(context.Context) error { return errs.ErrRemoteUnavailable })

	assert.ErrorIs(t, err, errs.ErrRemoteUnavailable)
	assert.True(t, m.SignedIn())
	provider.AssertNotCalled(t, "RequestToken", mock.Anything, mock.Anything)
}

func TestClose_CancelsTimerKeepsToken(t *testing.T) {
	m, clock := setupManager(new(MockProvider), &memoryStore{token: "tok"})
	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	m.Close()

	assert.Empty(t, clock.active())
	assert.True(t, m.SignedIn())
}

// gatedProvider blocks every request until released, or until the request
// context is cancelled.
type gatedProvider struct {
	started chan bool
	release chan struct{}
	token   string
	calls   atomic.Int32
}

func newGatedProvider(token string) *gatedProvider {
	return &gatedProvider{
		started: make(chan bool, 8),
		release: make(chan struct{}),
		token:   token,
	}
}

func (p *gatedProvider) RequestToken(ctx context.Context, silent bool) (string, error) {
	p.calls.Add(1)
	p.started <- silent
	select {
	case <-p.release:
		return p.token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fireInBackground runs the armed renewal timer and returns a channel closed
// once the renewal has returned.
func fireInBackground(t *testing.T, clock *fakeClock) <-chan struct{} {
	t.Helper()
	active := clock.active()
	require.Len(t, active, 1)
	fn := active[0].fn
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

func TestRenewal_InFlightDroppedAfterSignOut(t *testing.T) {
	// Arrange
	provider := newGatedProvider("tok-renewed")
	store := &memoryStore{token: "tok-1"}
	m, clock := setupManager(provider, store)
	defer m.Close()
	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	done := fireInBackground(t, clock)
	assert.True(t, <-provider.started)

	// Act
	m.SignOut()
	close(provider.release)
	<-done

	// Assert
	assert.False(t, m.SignedIn())
	assert.False(t, m.RenewalPending())
	assert.Empty(t, store.token)
	assert.Empty(t, clock.active())
}

func TestRenewal_InFlightDroppedAfterReschedule(t *testing.T) {
	provider := newGatedProvider("tok-renewed")
	store := &memoryStore{token: "tok-1"}
	m, clock := setupManager(provider, store)
	defer m.Close()
	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	done := fireInBackground(t, clock)
	<-provider.started
	m.ScheduleRenewal()
	close(provider.release)
	<-done

	token, err := m.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "tok-1", store.token)
	assert.Len(t, clock.active(), 1)
}

func TestClose_DuringRenewalKeepsCachedToken(t *testing.T) {
	// Arrange
	provider := newGatedProvider("tok-renewed")
	store := &memoryStore{token: "tok-1"}
	var expired atomic.Bool
	clock := &fakeClock{}
	m := NewManager(Options{
		Provider:  provider,
		Store:     store,
		Lifetime:  time.Hour,
		AfterFunc: clock.AfterFunc,
		OnExpired: func(error) { expired.Store(true) },
	})
	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	done := fireInBackground(t, clock)
	<-provider.started

	// Act
	m.Close()
	<-done

	// Assert
	assert.Equal(t, "tok-1", store.token)
	assert.False(t, expired.Load())
	assert.Empty(t, clock.active())
}

func TestRenew_SupersededError(t *testing.T) {
	provider := newGatedProvider("tok-renewed")
	m, _ := setupManager(provider, &memoryStore{token: "tok-1"})
	defer m.Close()
	_, err := m.SignIn(context.Background())
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() { result <- m.Renew(context.Background()) }()
	<-provider.started
	m.SignOut()
	close(provider.release)

	assert.ErrorIs(t, <-result, ErrRenewalSuperseded)
	assert.False(t, m.SignedIn())
}

func TestSignIn_ConcurrentCallersShareConsent(t *testing.T) {
	// Arrange
	provider := newGatedProvider("tok-1")
	store := &memoryStore{}
	m, clock := setupManager(provider, store)
	defer m.Close()

	first := make(chan error, 1)
	go func() {
		_, err := m.SignIn(context.Background())
		first <- err
	}()
	assert.False(t, <-provider.started)

	second := make(chan string, 1)
	go func() {
		token, _ := m.SignIn(context.Background())
		second <- token
	}()
	// Give the second caller time to join the pending sign-in.
	time.Sleep(20 * time.Millisecond)

	// Act
	close(provider.release)

	// Assert
	require.NoError(t, <-first)
	assert.Equal(t, "tok-1", <-second)
	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, "tok-1", store.token)
	assert.Len(t, clock.active(), 1)
}
