// Package dedup canonicalizes entity names and decides candidate
// equivalence via string and embedding similarity. All functions here are
// deterministic and side-effect-free; every resolution path builds on them.
package dedup

import (
	"regexp"
	"strings"
)

var (
	parentheticalRe = regexp.MustCompile(`\s*\([^)]*\)`)
	nonNameCharRe   = regexp.MustCompile(`[^a-z0-9' ]`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// roleSuffixes are trailing annotations that describe how an entity was
// mentioned rather than what it is. They are stripped before matching.
var roleSuffixes = []string{
	"(bot)", "(user)", "(assistant)", "(system)", "(agent)",
}

// Normalize lowercases a display name, collapses whitespace and
// underscores, strips parenthetical qualifiers and punctuation, and trims.
// The result is the key the identity deriver and the matcher operate on.
func Normalize(name string) string {
	normalized := strings.ToLower(name)
	normalized = strings.ReplaceAll(normalized, "_", " ")
	for _, suffix := range roleSuffixes {
		normalized = strings.TrimSuffix(strings.TrimSpace(normalized), suffix)
	}
	normalized = parentheticalRe.ReplaceAllString(normalized, " ")
	normalized = nonNameCharRe.ReplaceAllString(normalized, " ")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Tokens splits a normalized name into its whole-word tokens.
func Tokens(normalizedName string) []string {
	return strings.Fields(normalizedName)
}
