package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// SettingsKey is the backend key of the settings record.
const SettingsKey = "bivium_settings"

type ViewMode string

const (
	Parallel    ViewMode = "parallel"
	GermanOnly  ViewMode = "german-only"
	SpanishOnly ViewMode = "spanish-only"
	Immersive   ViewMode = "immersive"
)

// ViewModes lists the modes in menu order.
var ViewModes = []ViewMode{Parallel, Immersive, GermanOnly, SpanishOnly}

func (m ViewMode) Valid() bool {
	switch m {
	case Parallel, GermanOnly, SpanishOnly, Immersive:
		return true
	}
	return false
}

type Alignment string

const (
	AlignLeft    Alignment = "left"
	AlignJustify Alignment = "justify"
)

func (a Alignment) Valid() bool { return a == AlignLeft || a == AlignJustify }

type TranslationStyle string

const (
	StyleInline  TranslationStyle = "inline"
	StyleTooltip TranslationStyle = "tooltip"
)

func (s TranslationStyle) Valid() bool { return s == StyleInline || s == StyleTooltip }

type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

func (t Theme) Valid() bool { return t == ThemeSystem || t == ThemeLight || t == ThemeDark }

// FontSizes and LineHeights are the steps offered by the hosts.
var (
	FontSizes   = []float64{14, 16, 18, 20, 22, 24}
	LineHeights = []float64{1.4, 1.6, 1.8, 2.0}
)

// Settings is the persisted reader configuration.
type Settings struct {
	FontFamily       string           `json:"fontFamily" yaml:"fontFamily"`
	FontSize         float64          `json:"fontSize" yaml:"fontSize"`
	LineHeight       float64          `json:"lineHeight" yaml:"lineHeight"`
	Theme            Theme            `json:"theme" yaml:"theme"`
	ViewMode         ViewMode         `json:"viewMode" yaml:"viewMode"`
	TextAlignment    Alignment        `json:"textAlignment" yaml:"textAlignment"`
	TranslationStyle TranslationStyle `json:"translationStyle" yaml:"translationStyle"`
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		FontFamily:       DefaultFont.ID,
		FontSize:         18,
		LineHeight:       1.6,
		Theme:            ThemeSystem,
		ViewMode:         Parallel,
		TextAlignment:    AlignLeft,
		TranslationStyle: StyleInline,
	}
}

// Normalize replaces every invalid field by its default.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if _, ok := FontByID(s.FontFamily); !ok {
		s.FontFamily = def.FontFamily
	}
	if s.FontSize < 8 || s.FontSize > 48 {
		s.FontSize = def.FontSize
	}
	if s.LineHeight < 1 || s.LineHeight > 3 {
		s.LineHeight = def.LineHeight
	}
	if !s.Theme.Valid() {
		s.Theme = def.Theme
	}
	if !s.ViewMode.Valid() {
		s.ViewMode = def.ViewMode
	}
	if !s.TextAlignment.Valid() {
		s.TextAlignment = def.TextAlignment
	}
	if !s.TranslationStyle.Valid() {
		s.TranslationStyle = def.TranslationStyle
	}
	return s
}

// MergeSettings overlays the fields present in data on base, one field at a
// time. Fields that fail to decode keep their base value.
func MergeSettings(base Settings, data []byte) (Settings, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return base, err
	}
	targets := map[string]any{
		"fontFamily":       &base.FontFamily,
		"fontSize":         &base.FontSize,
		"lineHeight":       &base.LineHeight,
		"theme":            &base.Theme,
		"viewMode":         &base.ViewMode,
		"textAlignment":    &base.TextAlignment,
		"translationStyle": &base.TranslationStyle,
	}
	for key, raw := range fields {
		target, ok := targets[key]
		if !ok {
			continue
		}
		prev := base
		if err := json.Unmarshal(raw, target); err != nil {
			base = prev
		}
	}
	return base.Normalize(), nil
}

// SettingsStore holds the current settings in memory and persists changes in
// the background.
type SettingsStore struct {
	backend Backend
	writer  *Writer
	log     *zap.Logger

	mu      sync.RWMutex
	current Settings
}

func NewSettingsStore(backend Backend, writer *Writer, log *zap.Logger) *SettingsStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsStore{backend: backend, writer: writer, log: log, current: DefaultSettings()}
}

// Load reads the stored settings merged over defaults. Read failures are
// logged and yield the defaults.
func (s *SettingsStore) Load(ctx context.Context) Settings {
	loaded := DefaultSettings()
	data, err := s.backend.Get(ctx, SettingsKey)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		s.log.Warn("Unable to read settings, using defaults", zap.Error(err))
	default:
		if loaded, err = MergeSettings(loaded, data); err != nil {
			s.log.Warn("Unable to decode settings, using defaults", zap.Error(err))
			loaded = DefaultSettings()
		}
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return loaded
}

// Current returns the in-memory settings.
func (s *SettingsStore) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies f to the in-memory settings, then queues the durable write.
// A failed write is logged and does not roll the change back.
func (s *SettingsStore) Update(f func(*Settings)) Settings {
	s.mu.Lock()
	next := s.current
	f(&next)
	next = next.Normalize()
	s.current = next
	s.mu.Unlock()

	s.writer.Submit("settings", func(ctx context.Context) error {
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return s.backend.Put(ctx, SettingsKey, data)
	})
	return next
}
