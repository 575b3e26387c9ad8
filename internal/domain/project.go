package domain

import (
	"strings"
	"unicode"
)

const (
	// ProjectTitlePrefix prefixes every project spreadsheet title.
	ProjectTitlePrefix = "Project: "

	// DefaultProjectName is used when no project can be identified in the utterance.
	DefaultProjectName = "General"
)

// accentFolder replaces the accented vowels and cedilla with their plain Latin letters.
// The mapping is explicit on purpose so the result never depends on a locale.
var accentFolder = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ã", "a", "ä", "a", "å", "a",
	"è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i",
	"ò", "o", "ó", "o", "ô", "o", "õ", "o", "ö", "o",
	"ù", "u", "ú", "u", "û", "u", "ü", "u",
	"ç", "c",
)

// Normalize derives the canonical project name used as the spreadsheet lookup key.
// Two spoken names refer to the same project iff their normalized forms are equal.
func Normalize(raw string) string {
	folded := accentFolder.Replace(strings.ToLower(raw))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Project groups every expense and payment of one construction site.
type Project struct {
	CanonicalName string
}

// ProjectFor builds the project for a spoken name. Names that normalize to nothing
// fall back to the default project.
func ProjectFor(spoken string) Project {
	canonical := Normalize(spoken)
	if canonical == "" {
		canonical = Normalize(DefaultProjectName)
	}
	return Project{CanonicalName: canonical}
}

// Title is the spreadsheet title backing the project.
func (p Project) Title() string {
	return ProjectTitlePrefix + p.CanonicalName
}

// ProjectNameFromTitle returns the canonical name for a project spreadsheet title,
// and false for titles that do not belong to a project.
func ProjectNameFromTitle(title string) (string, bool) {
	if !strings.HasPrefix(title, ProjectTitlePrefix) {
		return "", false
	}
	return strings.TrimPrefix(title, ProjectTitlePrefix), true
}
