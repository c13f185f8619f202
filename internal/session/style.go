package session

import (
	"github.com/metcalfc/bivium/internal/bridge"
	"github.com/metcalfc/bivium/internal/state"
)

var (
	LightPalette = bridge.Palette{
		Name:        "light",
		Background:  "#FDFCF8",
		Surface:     "#FFFFFF",
		Border:      "#e5e5e5",
		GermanText:  "#1a1a1a",
		SpanishText: "#555555",
		Highlight:   "#FFF9E6",
		Accent:      "#8B4513",
	}
	DarkPalette = bridge.Palette{
		Name:        "dark",
		Background:  "#0d0d0d",
		Surface:     "#1a1a1a",
		Border:      "#2d2d2d",
		GermanText:  "#E8E6E3",
		SpanishText: "#B0ABA6",
		Highlight:   "#2A2520",
		Accent:      "#C49A6C",
	}
)

// PaletteFor resolves a theme setting. The system theme follows systemDark.
func PaletteFor(t state.Theme, systemDark bool) bridge.Palette {
	switch {
	case t == state.ThemeDark:
		return DarkPalette
	case t == state.ThemeSystem && systemDark:
		return DarkPalette
	}
	return LightPalette
}

// FontFor returns the font command payload for s.
func FontFor(s state.Settings) bridge.FontSpec {
	f, ok := state.FontByID(s.FontFamily)
	if !ok {
		f = state.DefaultFont
	}
	return bridge.FontSpec{
		Name:       f.ID,
		Family:     f.Family,
		Fallback:   f.Fallback(),
		Size:       s.FontSize,
		LineHeight: s.LineHeight,
	}
}

// PresentationFor maps the translation style to a reveal presentation.
func PresentationFor(s state.Settings) bridge.Presentation {
	if s.TranslationStyle == state.StyleTooltip {
		return bridge.Tooltip
	}
	return bridge.Inline
}
