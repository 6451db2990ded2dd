package timeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/language"
)

const (
	savedPrefix   = "timeline:"
	languageKey   = "language"
	maxPromptSize = 500
)

// Registry stores user timelines in the preference store and serves them
// together with the system timelines.
type Registry struct {
	store domain.PreferenceStore
	now   func() time.Time
}

// NewRegistry creates a Registry backed by store.
func NewRegistry(store domain.PreferenceStore) *Registry {
	return &Registry{store: store, now: time.Now}
}

// List returns the system timelines followed by saved ones sorted by name.
func (r *Registry) List(ctx context.Context) ([]domain.TimelineConfig, error) {
	lang, err := r.Language(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := r.store.ListPreferenceKeys(ctx, savedPrefix)
	if err != nil {
		return nil, fmt.Errorf("list timeline keys: %w", err)
	}

	saved := make([]domain.TimelineConfig, 0, len(keys))
	for _, key := range keys {
		var cfg domain.TimelineConfig
		ok, err := r.store.GetPreference(ctx, key, &cfg)
		if err != nil {
			return nil, fmt.Errorf("load timeline %s: %w", key, err)
		}
		if ok {
			saved = append(saved, cfg)
		}
	}
	slices.SortFunc(saved, func(a, b domain.TimelineConfig) int {
		if c := cmp.Compare(strings.ToLower(a.Identity.Name), strings.ToLower(b.Identity.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})

	return append(SystemTimelines(lang), saved...), nil
}

// Get returns the timeline stored at key.
func (r *Registry) Get(ctx context.Context, key string) (domain.TimelineConfig, error) {
	if IsSystemKey(key) {
		lang, err := r.Language(ctx)
		if err != nil {
			return domain.TimelineConfig{}, err
		}
		if cfg, ok := systemTimeline(key, lang); ok {
			return cfg, nil
		}
		return domain.TimelineConfig{}, fmt.Errorf("timeline %s: %w", key, domain.ErrNotFound)
	}

	var cfg domain.TimelineConfig
	ok, err := r.store.GetPreference(ctx, key, &cfg)
	if err != nil {
		return domain.TimelineConfig{}, fmt.Errorf("load timeline %s: %w", key, err)
	}
	if !ok {
		return domain.TimelineConfig{}, fmt.Errorf("timeline %s: %w", key, domain.ErrNotFound)
	}
	return cfg, nil
}

// Save normalizes, validates and stores cfg. An empty key creates a new
// timeline. The stored configuration is returned.
func (r *Registry) Save(ctx context.Context, cfg domain.TimelineConfig) (domain.TimelineConfig, error) {
	if IsSystemKey(cfg.Key) {
		return domain.TimelineConfig{}, fmt.Errorf("save %s: %w", cfg.Key, domain.ErrReadOnly)
	}
	if cfg.Key != "" && !strings.HasPrefix(cfg.Key, savedPrefix) {
		return domain.TimelineConfig{}, fmt.Errorf("%w: key must start with %q", domain.ErrInvalidTimeline, savedPrefix)
	}

	cfg.Normalize()
	if err := validate(&cfg); err != nil {
		return domain.TimelineConfig{}, err
	}

	now := r.now().UTC()
	if cfg.Key == "" {
		cfg.Key = savedPrefix + uuid.NewString()
		cfg.Meta.CreatedAt = now
	} else {
		existing, err := r.Get(ctx, cfg.Key)
		switch {
		case err == nil:
			cfg.Meta.CreatedAt = existing.Meta.CreatedAt
		case errors.Is(err, domain.ErrNotFound):
			cfg.Meta.CreatedAt = now
		default:
			return domain.TimelineConfig{}, err
		}
	}
	cfg.Meta.ModifiedAt = now
	if cfg.Meta.Origin == "" || cfg.Meta.Origin == domain.OriginSystem {
		cfg.Meta.Origin = domain.OriginSelf
	}

	if err := r.store.SetPreference(ctx, cfg.Key, cfg); err != nil {
		return domain.TimelineConfig{}, fmt.Errorf("store timeline %s: %w", cfg.Key, err)
	}
	return cfg, nil
}

// Delete removes a saved timeline.
func (r *Registry) Delete(ctx context.Context, key string) error {
	if IsSystemKey(key) {
		return fmt.Errorf("delete %s: %w", key, domain.ErrReadOnly)
	}
	if _, err := r.Get(ctx, key); err != nil {
		return err
	}
	if err := r.store.DeletePreference(ctx, key); err != nil {
		return fmt.Errorf("delete timeline %s: %w", key, err)
	}
	return nil
}

// Language returns the language preference, empty when unset.
func (r *Registry) Language(ctx context.Context) (string, error) {
	var lang string
	if _, err := r.store.GetPreference(ctx, languageKey, &lang); err != nil {
		return "", fmt.Errorf("load language preference: %w", err)
	}
	return lang, nil
}

// SetLanguage stores the language preference. An empty code clears it.
func (r *Registry) SetLanguage(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return r.store.DeletePreference(ctx, languageKey)
	}
	if _, ok := language.ParseTag(code); !ok {
		return fmt.Errorf("%w: unsupported language %q", domain.ErrInvalidTimeline, code)
	}
	return r.store.SetPreference(ctx, languageKey, code)
}

func validate(cfg *domain.TimelineConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTimeline, err)
	}
	if cfg.Behaviour.Language != "" {
		if _, ok := language.ParseTag(cfg.Behaviour.Language); !ok {
			return fmt.Errorf("%w: unsupported language %q", domain.ErrInvalidTimeline, cfg.Behaviour.Language)
		}
	}
	for _, p := range slices.Concat(cfg.Behaviour.PositivePrompts, cfg.Behaviour.NegativePrompts) {
		if len(p) > maxPromptSize {
			return fmt.Errorf("%w: prompt longer than %d bytes", domain.ErrInvalidTimeline, maxPromptSize)
		}
	}
	return nil
}
