// Package textnorm implements the single normalization pipeline applied to
// every piece of text that becomes part of a chunk's content-addressed
// identity. Because chunk_id is derived from normalized text, normalize must
// be total, pure, and idempotent: the same input always yields the same
// output, and re-normalizing an already-normalized string is a no-op.
package textnorm

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// dehyphenRe matches a single hyphen followed by arbitrary whitespace
// (including a newline) between two word characters, the pattern XML grant
// text uses to wrap a word across a line boundary.
var dehyphenRe = regexp.MustCompile(`(\w)-\s+(\w)`)

var wsRe = regexp.MustCompile(`\s+`)

// Normalize applies the full pipeline: NFKC form, HTML entity unescaping,
// dehyphenation across line wraps, NUL removal, whitespace collapse, and
// outer trim. A nil or empty input normalizes to "".
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = html.UnescapeString(s)
	s = dehyphenate(s)
	s = removeNull(s)
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func dehyphenate(s string) string {
	// Repeated because two consecutive hyphen-wrap joins can overlap after the
	// first replacement collapses intervening whitespace.
	prev := ""
	cur := s
	for cur != prev {
		prev = cur
		cur = dehyphenRe.ReplaceAllString(cur, "$1$2")
	}
	return cur
}

func removeNull(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
