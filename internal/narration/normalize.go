package narration

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	clausePunct     = regexp.MustCompile(`\s*([,;!?])\s*`)
	spaceBeforeStop = regexp.MustCompile(`\s+\.`)
	repeatedStops   = regexp.MustCompile(`\.{2,}`)
)

// Normalize rewrites a line so a speech engine reads it with natural pauses.
// Colons become a dash pause, whitespace and clause punctuation are tidied,
// and the result always ends in terminal punctuation. Blank input stays blank.
func Normalize(line string) string {
	s := strings.ReplaceAll(line, ":", " — ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = clausePunct.ReplaceAllString(s, "${1} ")
	s = spaceBeforeStop.ReplaceAllString(s, ".")
	s = repeatedStops.ReplaceAllString(s, ".")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	switch s[len(s)-1] {
	case '.', '?', '!':
		return s
	}
	return s + "."
}
