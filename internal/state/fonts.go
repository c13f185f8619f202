package state

// FontCategory groups fonts for menus.
type FontCategory string

const (
	Serif FontCategory = "serif"
	Sans  FontCategory = "sans"
	Mono  FontCategory = "mono"
)

// Font is one of the reading typefaces.
type Font struct {
	ID          string
	DisplayName string
	Family      string
	Category    FontCategory
}

// Fallback returns the generic families used while the font loads.
func (f Font) Fallback() []string {
	switch f.Category {
	case Sans:
		return []string{"system-ui", "Helvetica", "Arial", "sans-serif"}
	case Mono:
		return []string{"ui-monospace", "Menlo", "monospace"}
	}
	return []string{"Georgia", "serif"}
}

var Fonts = []Font{
	{ID: "merriweather", DisplayName: "Merriweather", Family: "Merriweather", Category: Serif},
	{ID: "lora", DisplayName: "Lora", Family: "Lora", Category: Serif},
	{ID: "literata", DisplayName: "Literata", Family: "Literata", Category: Serif},
	{ID: "crimson", DisplayName: "Crimson Pro", Family: "Crimson Pro", Category: Serif},
	{ID: "inter", DisplayName: "Inter", Family: "Inter", Category: Sans},
	{ID: "sourceSans", DisplayName: "Source Sans 3", Family: "Source Sans 3", Category: Sans},
	{ID: "lato", DisplayName: "Lato", Family: "Lato", Category: Sans},
	{ID: "jetbrains", DisplayName: "JetBrains Mono", Family: "JetBrains Mono", Category: Mono},
}

// DefaultFont is Lora.
var DefaultFont = Fonts[1]

// FontByID looks a font up by its settings id.
func FontByID(id string) (Font, bool) {
	for _, f := range Fonts {
		if f.ID == id {
			return f, true
		}
	}
	return Font{}, false
}
