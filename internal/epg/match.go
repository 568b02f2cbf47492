// Package epg reconciles playlist channel identities against guide channel
// identities and rewrites guide documents to playlist terms.
//
// # What it does
//
// A playlist and a guide feed rarely agree on what a station is called:
// "ESPN.us" versus "espn.us", "Al Jazeera HD" versus "aljazeera". The matcher
// closes that gap one playlist channel at a time with a tiered cascade:
// operator override, exact id, exact normalized name, then fuzzy similarity
// above a threshold. Every guide channel binds to at most one playlist
// channel and every playlist channel to at most one guide channel; the first
// fit wins and later contenders stay unmatched. The filter then re-emits the
// guide with only bound channels, re-keyed to the playlist's original-case
// identifiers, streaming so a multi-hundred-megabyte document passes through
// in bounded memory.
package epg

import (
	"strings"

	"github.com/a-curious-pear/peartv/internal/playlist"
)

// Tier identifies which cascade stage produced a binding.
type Tier string

const (
	TierOverride Tier = "override"
	TierID       Tier = "id"
	TierName     Tier = "name"
	TierFuzzy    Tier = "fuzzy"
)

// DefaultThreshold is the fuzzy-tier acceptance cutoff.
const DefaultThreshold = 0.8

// Binding ties one guide channel to one playlist channel.
type Binding struct {
	GuideID  string  `json:"guide_id"`  // lowercased guide id
	OutputID string  `json:"output_id"` // playlist id, original case
	Tier     Tier    `json:"tier"`
	Score    float64 `json:"score"` // 1 for exact tiers
}

// Mapping is the reconciliation result: at most one binding per guide id and
// per output id. Iteration order is the order bindings were made.
type Mapping struct {
	byGuide map[string]Binding
	order   []string
}

// NewMapping rebuilds a mapping from stored bindings, dropping any that would
// break the at-most-one rule on either side.
func NewMapping(bindings []Binding) *Mapping {
	m := &Mapping{byGuide: make(map[string]Binding, len(bindings))}
	outSeen := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		key := strings.ToLower(strings.TrimSpace(b.GuideID))
		outKey := strings.ToLower(strings.TrimSpace(b.OutputID))
		if key == "" || outKey == "" {
			continue
		}
		if _, dup := m.byGuide[key]; dup || outSeen[outKey] {
			continue
		}
		b.GuideID = key
		m.byGuide[key] = b
		m.order = append(m.order, key)
		outSeen[outKey] = true
	}
	return m
}

func (m *Mapping) add(b Binding) {
	m.byGuide[b.GuideID] = b
	m.order = append(m.order, b.GuideID)
}

// Len returns the number of bindings.
func (m *Mapping) Len() int { return len(m.byGuide) }

// Bindings returns all bindings in the order they were made.
func (m *Mapping) Bindings() []Binding {
	out := make([]Binding, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byGuide[id])
	}
	return out
}

// Lookup resolves a guide channel reference, case-insensitively.
func (m *Mapping) Lookup(guideID string) (Binding, bool) {
	b, ok := m.byGuide[strings.ToLower(strings.TrimSpace(guideID))]
	return b, ok
}

// OutputIDFor returns the playlist id bound to a guide reference.
func (m *Mapping) OutputIDFor(guideID string) (string, bool) {
	b, ok := m.Lookup(guideID)
	return b.OutputID, ok
}

// Unmatched records one playlist channel the cascade could not bind.
type Unmatched struct {
	Channel string `json:"channel"`
	Reason  string `json:"reason"`
}

// Report summarizes one matcher run for logs and the status endpoint.
type Report struct {
	PlaylistChannels int          `json:"playlist_channels"`
	GuideChannels    int          `json:"guide_channels"`
	Matched          int          `json:"matched"`
	ByTier           map[Tier]int `json:"by_tier"`
	Unmatched        []Unmatched  `json:"unmatched,omitempty"`
}

// Matcher binds playlist channels to guide channels. The zero value matches
// with the default threshold and no overrides.
type Matcher struct {
	Threshold float64           // fuzzy cutoff; <=0 means DefaultThreshold
	Overrides map[string]string // normalized label -> guide id
}

// Match runs the cascade over every playlist channel in order. Unmatched
// channels are reported, never an error. Given the same inputs the result is
// identical run to run.
func (m *Matcher) Match(channels []playlist.Channel, ix *Index) (*Mapping, *Report) {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	mapping := &Mapping{byGuide: make(map[string]Binding)}
	report := &Report{
		PlaylistChannels: len(channels),
		GuideChannels:    ix.Len(),
		ByTier:           make(map[Tier]int),
	}
	claimedOut := make(map[string]bool)

	for _, ch := range channels {
		outID := ch.OutputID()
		if outID == "" {
			report.Unmatched = append(report.Unmatched, Unmatched{Channel: "(unnamed)", Reason: "no identity fields"})
			continue
		}
		if claimedOut[strings.ToLower(outID)] {
			report.Unmatched = append(report.Unmatched, Unmatched{Channel: outID, Reason: "duplicate playlist id"})
			continue
		}
		b, ok := m.bind(ch, ix, mapping, threshold)
		if !ok {
			report.Unmatched = append(report.Unmatched, Unmatched{Channel: outID, Reason: "no guide candidate"})
			continue
		}
		b.OutputID = outID
		mapping.add(b)
		claimedOut[strings.ToLower(outID)] = true
		report.Matched++
		report.ByTier[b.Tier]++
	}
	return mapping, report
}

// bind runs the cascade for one channel against the still-unclaimed guide
// entries.
func (m *Matcher) bind(ch playlist.Channel, ix *Index, mapping *Mapping, threshold float64) (Binding, bool) {
	claimed := func(idLower string) bool {
		_, taken := mapping.byGuide[idLower]
		return taken
	}
	aliases := Aliases(ch)

	// Operator overrides pin a label straight to a guide id. A pin whose
	// target is absent or already claimed falls through to the cascade.
	for _, alias := range aliases {
		target, ok := m.Overrides[alias]
		if !ok {
			continue
		}
		idLower := strings.ToLower(strings.TrimSpace(target))
		if _, present := ix.Get(idLower); present && !claimed(idLower) {
			return Binding{GuideID: idLower, Tier: TierOverride, Score: 1}, true
		}
	}

	// Exact id: the playlist's declared id names a guide channel directly.
	if raw := strings.ToLower(strings.TrimSpace(ch.RawID)); raw != "" {
		if _, present := ix.Get(raw); present && !claimed(raw) {
			return Binding{GuideID: raw, Tier: TierID, Score: 1}, true
		}
	}

	// Exact name: an alias equals a guide id or an indexed display name.
	// Candidate ids for a shared name are tried in guide declaration order.
	for _, alias := range aliases {
		if _, present := ix.Get(alias); present && !claimed(alias) {
			return Binding{GuideID: alias, Tier: TierName, Score: 1}, true
		}
		for _, idLower := range ix.idsForName(alias) {
			if !claimed(idLower) {
				return Binding{GuideID: idLower, Tier: TierName, Score: 1}, true
			}
		}
	}

	// Fuzzy: best ratio across every alias and every candidate's id and
	// display names. Ties keep the earlier guide entry.
	bestScore := 0.0
	bestID := ""
	for _, idLower := range ix.IDs() {
		if claimed(idLower) {
			continue
		}
		gc, _ := ix.Get(idLower)
		if score := fuzzyScore(aliases, idLower, gc); score > bestScore {
			bestScore = score
			bestID = idLower
		}
	}
	if bestID != "" && bestScore >= threshold {
		return Binding{GuideID: bestID, Tier: TierFuzzy, Score: bestScore}, true
	}
	return Binding{}, false
}

// fuzzyScore is the best ratio between any alias and the guide id or any
// normalized display name of one guide entry.
func fuzzyScore(aliases []string, idLower string, gc *GuideChannel) float64 {
	names := make([]string, 0, len(gc.DisplayNames)+1)
	names = append(names, idLower)
	for _, dn := range gc.DisplayNames {
		if n := Normalize(dn); n != "" {
			names = append(names, n)
		}
	}
	best := 0.0
	for _, alias := range aliases {
		for _, name := range names {
			if r := Ratio(alias, name); r > best {
				best = r
			}
		}
	}
	return best
}
