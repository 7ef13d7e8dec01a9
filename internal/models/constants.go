package models

import "strings"

const (
	ItemTypeText     = "text"
	ContextSeparator = "\n\n---\n\n"
	TitleSeparator   = "\n\n"
	ChunkIDPrefix    = "chunk-"
)

var themeDisplayNames = map[Theme]string{
	ThemePeople:     "IHMISET (Pitkäikäisten yhteiskunta)",
	ThemePower:      "VALTA (Maailmanjärjestyksen murros)",
	ThemeNature:     "LUONTO (Ympäristökriisi)",
	ThemeTechnology: "TEKNOLOGIA (Tekoälyn murros)",
	ThemeGeneral:    "YLEINEN",
}

// DisplayName returns the heading used for the theme in prompt context.
func (t Theme) DisplayName() string {
	if name, ok := themeDisplayNames[t]; ok {
		return name
	}
	return strings.ToUpper(string(t))
}

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	_, ok := themeDisplayNames[t]
	return ok
}

// ParseThemes converts a comma separated list ("valta, luonto") into themes.
// Unknown names are returned in the second value.
func ParseThemes(csv string) ([]Theme, []string) {
	var themes []Theme
	var unknown []string
	for _, part := range strings.Split(csv, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		t := Theme(name)
		if !t.Valid() {
			unknown = append(unknown, name)
			continue
		}
		themes = append(themes, t)
	}
	return themes, unknown
}

var (
	SystemPromptTemplate = `You are an analyst who evaluates organisations against the four megatrends of the Sitra Megatrends 2026 report.
Ground your answer in the report context supplied by the user when it is present.`

	UserPromptTemplate = `## RELEVANT CONTEXT FROM THE MEGATRENDS REPORT:

%s

%s`

	NoContextPlaceholder = "(No additional context available - use general knowledge of the megatrends)"
)
