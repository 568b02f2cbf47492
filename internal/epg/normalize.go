package epg

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// suffixRE matches one trailing channel-type word. Stripping requires leading
// whitespace, so a bare "hd" survives and "mtv" keeps its tail.
var suffixRE = regexp.MustCompile(`\s+(hd|fhd|uhd|tv|channel)$`)

// Normalize canonicalizes a raw channel label for comparison: Unicode NFC,
// lowercase, trimmed, internal whitespace collapsed to single spaces.
// Punctuation survives here; Compact strips it. Empty input yields "".
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// Compact reduces a label to its [a-z0-9] skeleton: "Fox News!" -> "foxnews".
func Compact(s string) string {
	s = Normalize(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Variants expands one label into every normalized key it might be indexed
// under: the spaced form, the compact form, and each progressively
// suffix-stripped spaced form. Stripped forms are added alongside the
// originals, never in place of them. The compact form is derived from the
// whole label only: "Fox News Channel" yields "foxnewschannel" but not
// "foxnews".
func Variants(s string) []string {
	spaced := Normalize(s)
	if spaced == "" {
		return nil
	}
	out := []string{spaced}
	seen := map[string]bool{spaced: true}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	add(Compact(s))
	for cur := spaced; ; {
		next := suffixRE.ReplaceAllString(cur, "")
		if next == cur {
			break
		}
		add(next)
		cur = next
	}
	return out
}
