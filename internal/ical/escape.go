// Package ical renders calendar events into RFC 5545 text and owns the
// byte-level contracts that make the output interoperable: CRLF line
// endings, backslash escaping, 75-octet line folding, and UTC-normalized
// date/times. Outlook, Google Calendar and Apple Calendar all consume the
// same rendering, so the rules here are deliberately conservative.
package ical

import (
	"strings"
	"unicode/utf8"
)

// foldWidth is the maximum number of octets on a physical line. RFC 5545
// folds at 75 octets, counting bytes of the UTF-8 encoding, not runes.
const foldWidth = 75

// MalformedInputError reports text that is not valid UTF-8 and therefore
// cannot be escaped or folded. Events built through the constructor never
// trigger it; it guards direct callers.
type MalformedInputError struct {
	Input string
}

func (e *MalformedInputError) Error() string {
	return "ical: input is not valid UTF-8"
}

// escaper rewrites the RFC 5545 TEXT special characters. Literal newlines
// become the two-character sequence \n; carriage returns are dropped so
// that CRLF and bare LF input both collapse to \n.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\r", "",
	"\n", `\n`,
)

// EscapeText escapes s for use as an RFC 5545 TEXT value. Callers must
// escape raw text exactly once: re-escaping already-escaped text doubles
// the backslashes.
func EscapeText(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", &MalformedInputError{Input: s}
	}
	return escaper.Replace(s), nil
}

// UnescapeText reverses EscapeText. Unknown escape sequences keep the
// escaped character as-is.
func UnescapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n', 'N':
				b.WriteByte('\n')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// FoldLine folds a single logical content line at the 75-octet boundary.
// Lines at or under the limit are returned unchanged. Continuation chunks
// are prefixed with exactly one space and joined with CRLF; the space
// counts toward the continuation line's octet budget, so every physical
// line stays within foldWidth octets.
//
// The cut position never lands inside a UTF-8 rune, inside a backslash
// escape pair, or inside a "mailto:" token — any of those would change the
// meaning of the reassembled line for a strict-but-buggy parser.
func FoldLine(line string) (string, error) {
	if !utf8.ValidString(line) {
		return "", &MalformedInputError{Input: line}
	}
	if len(line) <= foldWidth {
		return line, nil
	}

	var b strings.Builder
	rest := line
	limit := foldWidth
	for len(rest) > limit {
		cut := safeCut(rest, limit)
		b.WriteString(rest[:cut])
		b.WriteString("\r\n ")
		rest = rest[cut:]
		// Continuation lines carry a leading space, leaving one octet
		// less for content.
		limit = foldWidth - 1
	}
	b.WriteString(rest)
	return b.String(), nil
}

// safeCut returns a cut position <= limit that does not split a rune, an
// escape pair, or a "mailto:" token. It always returns at least 1 so folding
// makes progress.
func safeCut(s string, limit int) int {
	cut := limit

	// Back off to a rune boundary.
	for cut > 1 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	// Back off out of a "mailto:" token.
	const token = "mailto:"
	from := cut - len(token) + 1
	if from < 0 {
		from = 0
	}
	to := cut + len(token) - 1
	if to > len(s) {
		to = len(s)
	}
	if idx := strings.LastIndex(s[from:to], token); idx >= 0 {
		start := from + idx
		if start > 0 && start < cut {
			cut = start
		}
	}

	// Back off by one if the cut falls between a backslash and its
	// escaped character. An odd run of trailing backslashes means the
	// last one opens an escape pair.
	n := 0
	for cut-1-n >= 0 && s[cut-1-n] == '\\' {
		n++
	}
	if n%2 == 1 && cut > 1 {
		cut--
	}

	return cut
}

// Unfold reverses folding: every CRLF followed by a single space is removed,
// reconstructing the original logical lines.
func Unfold(s string) string {
	return strings.ReplaceAll(s, "\r\n ", "")
}
