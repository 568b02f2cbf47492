package epg

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/a-curious-pear/peartv/internal/xmltv"
)

// GuideChannel is one channel scanned out of a guide document: the id as the
// provider declared it, the ordinal of the source that declared it first, and
// its display names in document order.
type GuideChannel struct {
	ID           string
	Source       int
	DisplayNames []string
}

// Index is the lookup structure the guide scans build: lowercased guide id to
// channel, plus an inverted index from every display-name variant to the ids
// carrying it. The first source to declare an id keeps it; later duplicates
// are ignored.
type Index struct {
	byID     map[string]*GuideChannel
	order    []string
	nameToID map[string][]string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byID:     make(map[string]*GuideChannel),
		nameToID: make(map[string][]string),
	}
}

// AddSource scans all channel nodes out of r and folds them into the index.
// source is the ordinal recorded on each newly declared channel. Returns how
// many channels this source declared first.
func (ix *Index) AddSource(source int, r *xmltv.Reader) (int, error) {
	added := 0
	for {
		n, err := r.Next()
		if errors.Is(err, io.EOF) {
			return added, nil
		}
		if err != nil {
			return added, fmt.Errorf("index guide source %d: %w", source, err)
		}
		if !n.IsChannel() {
			continue
		}
		id := strings.TrimSpace(n.Attr("id"))
		if id == "" {
			continue
		}
		idLower := strings.ToLower(id)
		if _, dup := ix.byID[idLower]; dup {
			continue
		}
		gc := &GuideChannel{ID: id, Source: source}
		kids, err := n.Children()
		if err != nil {
			return added, fmt.Errorf("index guide source %d: channel %q: %w", source, id, err)
		}
		for i := range kids {
			if kids[i].XMLName.Local != "display-name" {
				continue
			}
			if name := strings.TrimSpace(kids[i].Text()); name != "" {
				gc.DisplayNames = append(gc.DisplayNames, name)
			}
		}
		ix.byID[idLower] = gc
		ix.order = append(ix.order, idLower)
		for _, name := range gc.DisplayNames {
			for _, v := range Variants(name) {
				ix.registerName(v, idLower)
			}
		}
		added++
	}
}

// registerName appends idLower to the candidate list for key, at most once.
func (ix *Index) registerName(key, idLower string) {
	for _, existing := range ix.nameToID[key] {
		if existing == idLower {
			return
		}
	}
	ix.nameToID[key] = append(ix.nameToID[key], idLower)
}

// Len returns the number of distinct guide channels indexed.
func (ix *Index) Len() int { return len(ix.byID) }

// Get returns the channel declared under idLower.
func (ix *Index) Get(idLower string) (*GuideChannel, bool) {
	gc, ok := ix.byID[idLower]
	return gc, ok
}

// IDs returns lowercased guide ids in first-seen order.
func (ix *Index) IDs() []string { return ix.order }

// idsForName returns the ids registered under a normalized name key, in
// first-seen order.
func (ix *Index) idsForName(key string) []string { return ix.nameToID[key] }
