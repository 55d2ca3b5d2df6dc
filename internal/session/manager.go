package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veritasvoid/TradeZen/internal/errs"
	"go.uber.org/zap"
)

// Provider issues access credentials. A silent request must not involve the
// user; an interactive one asks for consent and fails with errs.ErrAuthDenied
// when it is refused.
type Provider interface {
	RequestToken(ctx context.Context, silent bool) (string, error)
}

// CredentialStore persists the raw access credential on this device.
type CredentialStore interface {
	Token() (string, error)
	SaveToken(token string) error
	ClearToken() error
}

// Timer is the cancel handle of a scheduled renewal.
type Timer interface {
	Stop() bool
}

// ErrRenewalSuperseded is returned by Renew when the session was signed out,
// closed or rescheduled while the new credential was being requested. The
// result of that request is dropped.
var ErrRenewalSuperseded = errors.New("credential renewal superseded")

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Manager.
type Options struct {
	Provider Provider
	Store    CredentialStore

	// Loader prepares the remote client before the first remote call.
	Loader func(ctx context.Context) error

	// Lifetime is the validity window the provider enforces on each credential.
	Lifetime time.Duration

	// OnExpired is called after a failed renewal has signed the session out.
	// The caller is expected to restart sign-in from a clean state.
	OnExpired func(err error)

	Logger *zap.Logger

	// AfterFunc replaces time.AfterFunc, for tests.
	AfterFunc AfterFunc
}

type initCall struct {
	done chan struct{}
	err  error
}

type signInCall struct {
	done  chan struct{}
	token string
	err   error
}

// Manager keeps a valid credential for the remote store client. Credentials
// are renewed silently when 5/6 of their lifetime has elapsed; at most one
// renewal is ever pending.
type Manager struct {
	logger    *zap.Logger
	provider  Provider
	store     CredentialStore
	loader    func(ctx context.Context) error
	lifetime  time.Duration
	onExpired func(error)
	afterFunc AfterFunc

	baseCtx context.Context
	cancel  context.CancelFunc

	initMu      sync.Mutex
	initCall    *initCall
	initialized bool

	mu         sync.Mutex
	token      string
	timer      Timer
	generation uint64
	signInCall *signInCall
}

// NewManager creates a session manager. Call Close at shutdown.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	if opts.Loader == nil {
		opts.Loader = func(context.Context) error { return nil }
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:    opts.Logger.Named("session"),
		provider:  opts.Provider,
		store:     opts.Store,
		loader:    opts.Loader,
		lifetime:  opts.Lifetime,
		onExpired: opts.OnExpired,
		afterFunc: opts.AfterFunc,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// RenewalDelay is how long after issue a credential is renewed: 5/6 of its
// lifetime, leaving 1/6 as a safety margin.
func (m *Manager) RenewalDelay() time.Duration {
	return m.lifetime - m.lifetime/6
}

// Initialize runs the loader once. Concurrent callers share the pending run;
// after a failure a later call tries again.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	if m.initialized {
		m.initMu.Unlock()
		return nil
	}
	if call := m.initCall; call != nil {
		m.initMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &initCall{done: make(chan struct{})}
	m.initCall = call
	m.initMu.Unlock()

	err := m.loader(ctx)

	m.initMu.Lock()
	call.err = err
	m.initialized = err == nil
	m.initCall = nil
	m.initMu.Unlock()
	close(call.done)

	if err != nil {
		return fmt.Errorf("failed to initialize remote client: %w", err)
	}
	m.logger.Info("Remote client initialized")
	return nil
}

// SignIn returns a credential, reusing the one in memory or cached on this
// device without verifying it first. Otherwise the user is asked for consent.
// Either way a renewal is scheduled. Concurrent callers share one sign-in, so
// the user is never asked twice.
func (m *Manager) SignIn(ctx context.Context) (string, error) {
	m.mu.Lock()
	if call := m.signInCall; call != nil {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	call := &signInCall{done: make(chan struct{})}
	m.signInCall = call
	token := m.token
	m.mu.Unlock()

	call.token, call.err = m.signIn(ctx, token)

	m.mu.Lock()
	m.signInCall = nil
	m.mu.Unlock()
	close(call.done)
	return call.token, call.err
}

func (m *Manager) signIn(ctx context.Context, token string) (string, error) {
	issued := false
	if token == "" {
		cached, err := m.store.Token()
		if err != nil {
			m.logger.Warn("Failed to read cached credential", zap.Error(err))
		}
		token = cached
	}

	if token == "" {
		fresh, err := m.provider.RequestToken(ctx, false)
		if err != nil {
			return "", fmt.Errorf("sign in: %w", err)
		}
		token, issued = fresh, true
	}

	m.mu.Lock()
	m.token = token
	if issued {
		m.persist(token)
	}
	m.scheduleLocked()
	m.mu.Unlock()

	if issued {
		m.logger.Info("Signed in with new credential")
	} else {
		m.logger.Info("Signed in with cached credential")
	}
	return token, nil
}

// ScheduleRenewal arms the renewal timer, cancelling any pending one.
func (m *Manager) ScheduleRenewal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleLocked()
}

func (m *Manager) scheduleLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.generation++
	gen := m.generation
	delay := m.RenewalDelay()
	m.timer = m.afterFunc(delay, func() { m.fire(gen) })

	m.logger.Debug("Credential renewal scheduled", zap.Duration("in", delay))
}

func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.timer == nil {
		// Replaced or cancelled after this timer had already fired.
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	m.logger.Info("Renewing credential")
	err := m.Renew(m.baseCtx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRenewalSuperseded):
		m.logger.Info("Scheduled credential renewal dropped", zap.Error(err))
	default:
		m.logger.Error("Scheduled credential renewal failed", zap.Error(err))
	}
}

// Renew silently requests a new credential and re-arms the timer. A refused
// renewal ends the session: the manager signs out and reports through
// OnExpired. When the session was signed out, closed or rescheduled while the
// request was in flight, its result is dropped and ErrRenewalSuperseded returned.
func (m *Manager) Renew(ctx context.Context) error {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	token, err := m.provider.RequestToken(ctx, true)

	m.mu.Lock()
	if gen != m.generation || ctx.Err() != nil {
		m.mu.Unlock()
		if err != nil {
			return fmt.Errorf("renew credential: %w: %w", ErrRenewalSuperseded, err)
		}
		return fmt.Errorf("renew credential: %w", ErrRenewalSuperseded)
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("Credential renewal failed, signing out", zap.Error(err))
		m.SignOut()
		if m.onExpired != nil {
			m.onExpired(err)
		}
		return fmt.Errorf("renew credential: %w", err)
	}
	m.token = token
	m.persist(token)
	m.scheduleLocked()
	m.mu.Unlock()

	m.logger.Info("Credential renewed")
	return nil
}

// SignOut cancels the pending renewal and forgets the credential. The remote
// location ids stay cached so the next sign-in reattaches to the same store.
func (m *Manager) SignOut() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.token = ""
	m.mu.Unlock()

	if err := m.store.ClearToken(); err != nil {
		m.logger.Warn("Failed to clear cached credential", zap.Error(err))
	}
	m.logger.Info("Signed out")
}

// AccessToken returns the current credential or errs.ErrUnauthenticated.
func (m *Manager) AccessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", errs.ErrUnauthenticated
	}
	return m.token, nil
}

// SignedIn reports whether a credential is held.
func (m *Manager) SignedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != ""
}

// RenewalPending reports whether a renewal timer is armed.
func (m *Manager) RenewalPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Probe re-validates the credential with a benign remote call. When the call
// is rejected as unauthenticated the credential is renewed and the probe repeated once.
func (m *Manager) Probe(ctx context.Context, probe func(ctx context.Context) error) error {
	err := probe(ctx)
	if !errors.Is(err, errs.ErrUnauthenticated) {
		return err
	}
	if !m.SignedIn() {
		return err
	}
	m.logger.Info("Cached credential rejected, renewing")
	if err := m.Renew(ctx); err != nil {
		return err
	}
	return probe(ctx)
}

// Close cancels the pending renewal, and drops one in flight, without signing
// out. The cached credential survives for the next start.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.mu.Unlock()
	m.cancel()
}

func (m *Manager) persist(token string) {
	if err := m.store.SaveToken(token); err != nil {
		m.logger.Warn("Failed to cache credential", zap.Error(err))
	}
}
