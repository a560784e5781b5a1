package audience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/campaignsync/internal/schedule"
	"github.com/ignite/campaignsync/internal/storage"
)

const (
	settingsKeyPrefix = "audience_settings_"
	pluginKey         = "plugin_settings"
)

// Defaults seeds new records.
type Defaults struct {
	Timezone     schedule.Timezone
	PreviewEmail string
	FromName     string
	FromEmail    string
	APIKey       string
}

// Repository loads and saves settings records. Reads of an unknown
// audience return defaults without writing them.
type Repository struct {
	store    storage.Store
	defaults Defaults
}

// NewRepository wraps store.
func NewRepository(store storage.Store, defaults Defaults) *Repository {
	if defaults.Timezone == (schedule.Timezone{}) {
		defaults.Timezone = schedule.UTC
	}
	return &Repository{store: store, defaults: defaults}
}

// Defaults returns the seed values.
func (r *Repository) Defaults() Defaults { return r.defaults }

func settingsKey(audienceID string) string {
	return settingsKeyPrefix + audienceID
}

// Get returns the audience's settings, or fresh defaults.
func (r *Repository) Get(ctx context.Context, audienceID string) (*Settings, error) {
	if audienceID == "" {
		return nil, fmt.Errorf("audience: empty audience id")
	}
	data, err := r.store.Get(ctx, settingsKey(audienceID))
	if errors.Is(err, storage.ErrNotFound) {
		return r.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for %s: %w", audienceID, err)
	}

	s := &Settings{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode settings for %s: %w", audienceID, err)
	}
	r.fill(s)
	return s, nil
}

// fill supplies defaults for fields an older record may lack.
func (r *Repository) fill(s *Settings) {
	if s.Version == 0 {
		s.Version = SettingsVersion
	}
	if s.Timezone == (schedule.Timezone{}) {
		s.Timezone = r.defaults.Timezone
	}
	if s.Campaign.EmailFrequency == "" {
		s.Campaign.EmailFrequency = schedule.FrequencyWeekly
		if len(s.Campaign.FrequencySettings.Days) == 0 && len(s.Campaign.FrequencySettings.Times) == 0 {
			s.Campaign.FrequencySettings = schedule.DefaultRule()
		}
	}
	if s.Campaign.EmailTemplate.TemplateContent == nil {
		s.Campaign.EmailTemplate.TemplateContent = []TemplateRow{}
	}
	s.Normalize()
}

// New returns default settings without persisting them.
func (r *Repository) New() *Settings {
	return Default(r.defaults.Timezone, r.defaults.PreviewEmail)
}

// Exists reports whether settings were ever saved for the audience.
func (r *Repository) Exists(ctx context.Context, audienceID string) (bool, error) {
	_, err := r.store.Get(ctx, settingsKey(audienceID))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Save normalizes and writes s.
func (r *Repository) Save(ctx context.Context, audienceID string, s *Settings) error {
	if audienceID == "" {
		return fmt.Errorf("audience: empty audience id")
	}
	s.Normalize()
	if s.Timezone == (schedule.Timezone{}) {
		s.Timezone = r.defaults.Timezone
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings for %s: %w", audienceID, err)
	}
	if err := r.store.Set(ctx, settingsKey(audienceID), data); err != nil {
		return fmt.Errorf("failed to save settings for %s: %w", audienceID, err)
	}
	return nil
}

// Reset overwrites the audience's settings with defaults.
func (r *Repository) Reset(ctx context.Context, audienceID string) (*Settings, error) {
	s := r.New()
	if err := r.Save(ctx, audienceID, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes the audience's settings.
func (r *Repository) Delete(ctx context.Context, audienceID string) error {
	if err := r.store.Delete(ctx, settingsKey(audienceID)); err != nil {
		return fmt.Errorf("failed to delete settings for %s: %w", audienceID, err)
	}
	return nil
}

// AudienceIDs lists audiences with stored settings.
func (r *Repository) AudienceIDs(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, settingsKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list audiences: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, settingsKeyPrefix))
	}
	return ids, nil
}

// ===== plugin settings =====

// Plugin returns the plugin settings, or defaults.
func (r *Repository) Plugin(ctx context.Context) (*PluginSettings, error) {
	p := DefaultPluginSettings(r.defaults.FromName, r.defaults.FromEmail, r.defaults.APIKey)
	data, err := r.store.Get(ctx, pluginKey)
	if errors.Is(err, storage.ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin settings: %w", err)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode plugin settings: %w", err)
	}
	return p, nil
}

// SavePlugin writes the plugin settings.
func (r *Repository) SavePlugin(ctx context.Context, p *PluginSettings) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode plugin settings: %w", err)
	}
	if err := r.store.Set(ctx, pluginKey, data); err != nil {
		return fmt.Errorf("failed to save plugin settings: %w", err)
	}
	return nil
}

// UpdatePlugin applies patch to the stored record and saves it.
func (r *Repository) UpdatePlugin(ctx context.Context, patch PluginPatch) (*PluginSettings, error) {
	p, err := r.Plugin(ctx)
	if err != nil {
		return nil, err
	}
	patch.Apply(p)
	if err := r.SavePlugin(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ResetPlugin writes fresh plugin defaults.
func (r *Repository) ResetPlugin(ctx context.Context) (*PluginSettings, error) {
	p := DefaultPluginSettings(r.defaults.FromName, r.defaults.FromEmail, r.defaults.APIKey)
	if err := r.SavePlugin(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePlugin removes the plugin settings record.
func (r *Repository) DeletePlugin(ctx context.Context) error {
	return r.store.Delete(ctx, pluginKey)
}
