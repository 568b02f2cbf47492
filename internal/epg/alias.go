package epg

import "github.com/a-curious-pear/peartv/internal/playlist"

// Aliases returns every normalized key a playlist channel might appear under
// in a guide: the variant expansions of its id, name, and display text,
// deduplicated in that order. Empty only when all three fields are empty.
func Aliases(ch playlist.Channel) []string {
	var out []string
	seen := map[string]bool{}
	for _, field := range []string{ch.RawID, ch.RawName, ch.Display} {
		for _, v := range Variants(field) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
