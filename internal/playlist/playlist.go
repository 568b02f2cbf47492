// Package playlist parses M3U playlists into channel records.
//
// # What it does
//
// One pass over the playlist text pairs each #EXTINF metadata line with the
// URL line that follows it and extracts the identity fields the matcher needs:
// tvg-id (RawID), tvg-name (RawName), and the free-text label after the last
// comma (Display). Parsing never fetches; callers hand in any io.Reader.
package playlist

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// Channel is one playlist entry. RawID keeps the playlist's original case;
// that exact string is what the rewritten guide must carry.
type Channel struct {
	RawID   string `json:"raw_id,omitempty"`
	RawName string `json:"raw_name,omitempty"`
	Display string `json:"display,omitempty"`
	URL     string `json:"url,omitempty"`
	Group   string `json:"group,omitempty"`
	Logo    string `json:"logo,omitempty"`
}

// OutputID is the identifier the rewritten guide carries for this channel:
// the declared tvg-id when present, else the first non-empty name label (the
// key a player falls back to when tvg-id is absent).
func (c Channel) OutputID() string {
	if s := strings.TrimSpace(c.RawID); s != "" {
		return s
	}
	if s := strings.TrimSpace(c.RawName); s != "" {
		return s
	}
	return strings.TrimSpace(c.Display)
}

// Parse reads an M3U document and returns its channels in declaration order.
// An empty playlist yields an empty slice, not an error; the pipeline decides
// whether that aborts the run.
func Parse(r io.Reader) ([]Channel, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var channels []Channel
	var extinf string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			extinf = line
			continue
		}
		if strings.HasPrefix(line, "#") {
			// Directives (#EXTM3U, #EXTVLCOPT, ...) between EXTINF and URL
			// don't break the pair.
			continue
		}
		if extinf != "" && (strings.HasPrefix(line, "http") || strings.HasPrefix(line, "/")) {
			channels = append(channels, channelFromEXTINF(extinf, line))
			extinf = ""
			continue
		}
		extinf = ""
	}
	return channels, sc.Err()
}

func channelFromEXTINF(extinf, url string) Channel {
	return Channel{
		RawID:   attrValue(extinf, "tvg-id"),
		RawName: attrValue(extinf, "tvg-name"),
		Display: displayText(extinf),
		URL:     url,
		Group:   attrValue(extinf, "group-title"),
		Logo:    attrValue(extinf, "tvg-logo"),
	}
}

// attrValue extracts a key="value" attribute from an EXTINF line.
func attrValue(extinf, key string) string {
	prefix := key + `="`
	if i := strings.Index(extinf, prefix); i >= 0 {
		i += len(prefix)
		if j := strings.Index(extinf[i:], `"`); j >= 0 {
			return extinf[i : i+j]
		}
	}
	return ""
}

// displayText is the label after the last comma of the EXTINF line. Quoted
// attribute values may contain commas, so the last comma is the reliable
// separator.
func displayText(extinf string) string {
	if i := strings.LastIndex(extinf, ","); i >= 0 {
		return strings.TrimSpace(extinf[i+1:])
	}
	return ""
}
