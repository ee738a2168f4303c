// Package sanitize cleans free-text sleep descriptions before they are
// scored by a model or written to the feedback log. It strips control
// characters, XML/HTML tags, markdown structure and code fences so a
// description cannot smuggle instructions into the scoring prompt.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxDescriptionLength is the maximum length, in bytes, of a description.
const MaxDescriptionLength = 2000

var (
	// reXMLTag matches XML/HTML tags with attributes, self-closing tags and
	// processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reMarkdownHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reHorizontalRule    = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	reTripleBacktick    = regexp.MustCompile("```+")
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)
	reInlineSpace       = regexp.MustCompile(`[ \t]{2,}`)
)

// Description returns input with prompt-structuring markup removed:
//  1. Strip null bytes and ASCII control characters (except \n, \t)
//  2. Strip XML/HTML tags
//  3. Drop markdown heading markers and horizontal rules
//  4. Collapse code fences to a single backtick
//  5. Collapse runs of blank lines and inline whitespace
//  6. Trim, then truncate to MaxDescriptionLength on a rune boundary
func Description(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "")
	s = reHorizontalRule.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = reInlineSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) > MaxDescriptionLength {
		cut := MaxDescriptionLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F) and DEL,
// except for newline and tab.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
