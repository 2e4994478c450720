package pkg

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 100

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashes  = regexp.MustCompile(`-{2,}`)
	spaces      = regexp.MustCompile(`\s+`)
)

// StripAccents decomposes s and drops combining marks ("Córdoba" -> "Cordoba").
func StripAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName is the comparison key for geographic names: lowercase, no
// accents, hyphens and underscores as spaces, single spaced.
func NormalizeName(s string) string {
	s = strings.ToLower(StripAccents(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// Slugify builds the url slug for a title. Uniqueness is handled by the caller.
func Slugify(title string) string {
	s := strings.ToLower(StripAccents(title))
	s = spaces.ReplaceAllString(strings.TrimSpace(s), "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}
