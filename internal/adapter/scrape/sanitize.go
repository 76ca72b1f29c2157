package scrape

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	forbiddenChars = regexp.MustCompile(`[\\/*?:"<>|]+`)
	titleCaser     = cases.Title(language.Und)
)

// Sanitize makes a safe file name: forbidden characters removed, whitespace
// trimmed, Title Case applied ("absolum - live @ fest" -> "Absolum - Live @ Fest").
func Sanitize(name string) string {
	name = forbiddenChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)

	return titleCaser.String(name)
}
