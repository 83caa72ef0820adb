package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bookkeeper_bot/internal/domain/kv"
	"bookkeeper_bot/internal/domain/settings"

	"github.com/sirupsen/logrus"
)

const settingsKey = "settings_v1"

// SettingsStore keeps the current option table in memory and persists every change.
type SettingsStore struct {
	mu      sync.RWMutex
	kv      kv.Store
	current settings.Settings
	logger  *logrus.Entry
}

// NewSettingsStore loads persisted settings over seed. A missing or unreadable
// document leaves seed in effect.
func NewSettingsStore(ctx context.Context, store kv.Store, seed settings.Settings, logger *logrus.Entry) (*SettingsStore, error) {
	s := &SettingsStore{kv: store, current: seed.Normalized(), logger: logger}

	raw, err := store.Get(ctx, settingsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if raw == nil {
		logger.Info("No persisted settings found, using defaults")
		return s, nil
	}
	loaded, err := settings.Decode(raw, s.current)
	if err != nil {
		logger.WithError(err).Warn("Persisted settings are malformed, using defaults")
		return s, nil
	}
	s.current = loaded
	return s, nil
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() settings.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update applies fn to a copy of the settings, persists the result and makes it current.
// The in-memory value is left untouched when persistence fails.
func (s *SettingsStore) Update(ctx context.Context, fn func(*settings.Settings)) (settings.Settings, error) {
	return s.Apply(ctx, func(cfg *settings.Settings) error {
		fn(cfg)
		return nil
	})
}

// Apply is Update for changes that depend on the current value. fn runs under the
// store lock; an error from fn is returned as is and nothing is persisted.
func (s *SettingsStore) Apply(ctx context.Context, fn func(*settings.Settings) error) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if err := fn(&next); err != nil {
		return s.current.Clone(), err
	}
	next = next.Normalized()

	data, err := json.Marshal(next)
	if err != nil {
		return s.current.Clone(), fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.kv.Put(ctx, settingsKey, data); err != nil {
		return s.current.Clone(), fmt.Errorf("failed to save settings: %w", err)
	}
	s.current = next
	return next.Clone(), nil
}
