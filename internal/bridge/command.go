package bridge

import (
	"encoding/json"
	"fmt"
)

// CommandKind names one of the host to surface commands.
type CommandKind string

const (
	KindClearReveal CommandKind = "clearReveal"
	KindApplyReveal CommandKind = "applyReveal"
	KindSetFont     CommandKind = "setFont"
	KindSetTheme    CommandKind = "setTheme"
)

// Presentation selects how a revealed translation is shown.
type Presentation string

const (
	Inline  Presentation = "inline"
	Tooltip Presentation = "tooltip"
)

// Valid reports whether p is a known presentation.
func (p Presentation) Valid() bool {
	return p == Inline || p == Tooltip
}

// FontSpec is the typography pushed into a live surface.
type FontSpec struct {
	Name       string   `json:"name"`
	Family     string   `json:"family"`
	Fallback   []string `json:"fallback,omitempty"`
	Size       float64  `json:"size"`
	LineHeight float64  `json:"lineHeight"`
}

// Palette is the set of colors a surface paints with.
type Palette struct {
	Name        string `json:"name"`
	Background  string `json:"background"`
	Surface     string `json:"surface"`
	Border      string `json:"border"`
	GermanText  string `json:"germanText"`
	SpanishText string `json:"spanishText"`
	Highlight   string `json:"highlight"`
	Accent      string `json:"accent"`
}

// Command is a host to surface instruction. Every reveal command first clears
// all markers, so applying the same command twice is a no-op.
type Command struct {
	Kind         CommandKind  `json:"kind"`
	Version      int          `json:"v,omitempty"`
	SegmentID    string       `json:"segmentId,omitempty"`
	Presentation Presentation `json:"presentation,omitempty"`
	Font         *FontSpec    `json:"font,omitempty"`
	Theme        *Palette     `json:"theme,omitempty"`
}

func ClearReveal() Command { return Command{Kind: KindClearReveal} }

func ApplyReveal(id string, p Presentation) Command {
	return Command{Kind: KindApplyReveal, SegmentID: id, Presentation: p}
}

func SetFont(f FontSpec) Command { return Command{Kind: KindSetFont, Font: &f} }

func SetTheme(p Palette) Command { return Command{Kind: KindSetTheme, Theme: &p} }

// Reveal returns the reveal command for the given state: ApplyReveal when id
// is set, ClearReveal otherwise.
func Reveal(id string, p Presentation) Command {
	if id == "" {
		return ClearReveal()
	}
	return ApplyReveal(id, p)
}

// EncodeCommand serializes a command with the current protocol version.
func EncodeCommand(c Command) ([]byte, error) {
	c.Version = ProtocolVersion
	return json.Marshal(c)
}

// DecodeCommand parses and validates one command.
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	v := c.Version
	var vp *int
	if v != 0 {
		vp = &v
	}
	if _, err := checkVersion(vp); err != nil {
		return Command{}, err
	}

	switch c.Kind {
	case KindClearReveal:
	case KindApplyReveal:
		if c.SegmentID == "" {
			return Command{}, fmt.Errorf("%w: applyReveal without segmentId", ErrMalformed)
		}
		if c.Presentation == "" {
			c.Presentation = Inline
		}
		if !c.Presentation.Valid() {
			return Command{}, fmt.Errorf("%w: presentation %q", ErrMalformed, c.Presentation)
		}
	case KindSetFont:
		if c.Font == nil {
			return Command{}, fmt.Errorf("%w: setFont without font", ErrMalformed)
		}
	case KindSetTheme:
		if c.Theme == nil {
			return Command{}, fmt.Errorf("%w: setTheme without theme", ErrMalformed)
		}
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrMalformed, c.Kind)
	}
	return c, nil
}
