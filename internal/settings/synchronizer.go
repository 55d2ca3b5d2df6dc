// Package settings keeps the user's display settings in sync between this
// device and the Settings tab of the journal.
package settings

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/veritasvoid/TradeZen/internal/config"
	"go.uber.org/zap"
)

const (
	KeyCurrency        = "currency"
	KeyStartingBalance = "startingBalance"
	KeyPrivacyMode     = "privacyMode"
)

// Remote is the authoritative copy of the settings, one raw value per key.
type Remote interface {
	ReadSettings(ctx context.Context) (map[string]string, error)
	WriteSettings(ctx context.Context, values map[string]string) error
}

// Cache keeps the last known settings on this device.
type Cache interface {
	CachedSettings() (map[string]any, bool, error)
	SaveSettings(values map[string]any) error
}

// Defaults returns the settings used before anything is loaded.
func Defaults(cfg *config.Settings) map[string]any {
	return map[string]any{
		KeyCurrency:        cfg.Currency,
		KeyStartingBalance: cfg.StartingBalance,
		KeyPrivacyMode:     cfg.PrivacyMode,
	}
}

// Coerce interprets a raw remote value by its shape: "true" and "false" are
// booleans, finite numbers are float64, everything else stays a string.
func Coerce(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		// decimal rejects NaN and Inf, which are kept as strings.
		if d, err := decimal.NewFromString(trimmed); err == nil {
			return d.InexactFloat64()
		}
	}
	return raw
}

type loadCall struct {
	done chan struct{}
	err  error
}

// Synchronizer holds the merged settings. Reads and updates are served from
// memory; the remote copy is fetched once per process and written back after
// every update.
type Synchronizer struct {
	remote Remote
	cache  Cache
	logger *zap.Logger

	mu     sync.RWMutex
	values map[string]any
	// touched records keys updated locally while a load is in flight; the
	// fetched copy does not overwrite them.
	touched map[string]bool

	loadMu  sync.Mutex
	loaded  bool
	loading *loadCall
}

// NewSynchronizer starts from defaults overlaid with the settings cached on
// this device.
func NewSynchronizer(remote Remote, cache Cache, defaults map[string]any, logger *zap.Logger) *Synchronizer {
	values := maps.Clone(defaults)
	if values == nil {
		values = make(map[string]any)
	}

	logger = logger.Named("settings")
	cached, ok, err := cache.CachedSettings()
	switch {
	case err != nil:
		logger.Warn("Failed to read cached settings, using defaults", zap.Error(err))
	case ok:
		maps.Copy(values, cached)
	}

	return &Synchronizer{
		remote: remote,
		cache:  cache,
		logger: logger,
		values: values,
	}
}

// Load fetches the remote settings and merges them over the current ones.
// It runs at most once successfully; concurrent callers share one fetch, and
// after a failure the settings stay as they were and a later call tries again.
func (s *Synchronizer) Load(ctx context.Context) error {
	s.loadMu.Lock()
	if s.loaded {
		s.loadMu.Unlock()
		return nil
	}
	if call := s.loading; call != nil {
		s.loadMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	s.loading = call
	s.loadMu.Unlock()

	s.mu.Lock()
	s.touched = make(map[string]bool)
	s.mu.Unlock()

	call.err = s.fetch(ctx)

	s.loadMu.Lock()
	s.loaded = call.err == nil
	s.loading = nil
	s.loadMu.Unlock()
	close(call.done)

	return call.err
}

func (s *Synchronizer) fetch(ctx context.Context) error {
	raw, err := s.remote.ReadSettings(ctx)

	s.mu.Lock()
	touched := s.touched
	s.touched = nil
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("Failed to load remote settings", zap.Error(err))
		return fmt.Errorf("failed to load settings: %w", err)
	}
	for key, value := range raw {
		if touched[key] {
			continue
		}
		s.values[key] = Coerce(value)
	}
	snapshot := maps.Clone(s.values)
	s.mu.Unlock()

	s.saveLocal(snapshot)
	s.logger.Info("Settings loaded", zap.Int("keys", len(raw)))
	return nil
}

// Loaded reports whether the remote settings have been merged in.
func (s *Synchronizer) Loaded() bool {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.loaded
}

// Update applies partial to the in-memory settings before returning, then
// writes the full merged settings to the remote store in the background.
// The returned channel yields the outcome of that write. A failed write does
// not undo the local change.
func (s *Synchronizer) Update(ctx context.Context, partial map[string]any) <-chan error {
	s.mu.Lock()
	for key, value := range partial {
		s.values[key] = value
		if s.touched != nil {
			s.touched[key] = true
		}
	}
	snapshot := maps.Clone(s.values)
	s.mu.Unlock()

	s.saveLocal(snapshot)

	raw := make(map[string]string, len(snapshot))
	for key, value := range snapshot {
		raw[key] = cast.ToString(value)
	}

	// The write outlives the caller's request.
	ctx = context.WithoutCancel(ctx)
	result := make(chan error, 1)
	go func() {
		defer close(result)
		if err := s.remote.WriteSettings(ctx, raw); err != nil {
			s.logger.Warn("Failed to save settings remotely, keeping local change", zap.Error(err))
			result <- fmt.Errorf("failed to save settings: %w", err)
			return
		}
		s.logger.Debug("Settings saved remotely", zap.Int("keys", len(raw)))
		result <- nil
	}()
	return result
}

// SetOption updates a single setting. See Update.
func (s *Synchronizer) SetOption(ctx context.Context, key string, value any) <-chan error {
	return s.Update(ctx, map[string]any{key: value})
}

func (s *Synchronizer) saveLocal(values map[string]any) {
	if err := s.cache.SaveSettings(values); err != nil {
		s.logger.Warn("Failed to cache settings locally", zap.Error(err))
	}
}

// Settings returns a copy of the merged settings.
func (s *Synchronizer) Settings() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Get returns one setting.
func (s *Synchronizer) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Currency is the display currency symbol.
func (s *Synchronizer) Currency() string {
	v, _ := s.Get(KeyCurrency)
	return cast.ToString(v)
}

// StartingBalance is the account balance the yearly P&L is added to.
// Non-numeric values read as zero.
func (s *Synchronizer) StartingBalance() decimal.Decimal {
	v, _ := s.Get(KeyStartingBalance)
	d, err := decimal.NewFromString(strings.TrimSpace(cast.ToString(v)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PrivacyMode reports whether monetary values are masked.
func (s *Synchronizer) PrivacyMode() bool {
	v, _ := s.Get(KeyPrivacyMode)
	return cast.ToBool(v)
}
