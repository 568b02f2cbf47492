package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/a-curious-pear/peartv/internal/translate"
	"github.com/a-curious-pear/peartv/internal/xmltv"
)

// SourceOpener opens guide source i for one scan. The filter opens every
// source twice: once for the channels pass, once for the programmes pass.
type SourceOpener func(i int) (io.ReadCloser, error)

// FilterConfig carries the rewrite toggles. The zero value filters with no
// horizon, no shift, no translation, and source order preserved.
type FilterConfig struct {
	Now           time.Time            // horizon reference; zero means time.Now()
	HorizonDays   int                  // drop programmes starting after Now+N days; 0 disables
	TimezoneShift time.Duration        // added to every parseable start/stop stamp
	Translator    translate.Translator // applied to programme text; nil disables
	Sort          bool                 // stable-sort output by rewritten id
}

// Stats counts what one filter run emitted and dropped.
type Stats struct {
	Channels        int `json:"channels"`
	Programmes      int `json:"programmes"`
	DroppedUnmapped int `json:"dropped_unmapped"`
	DroppedHorizon  int `json:"dropped_horizon"`
	DroppedUnowned  int `json:"dropped_unowned"`
}

// OutputRootAttrs is the attribute set every emitted document's root carries.
func OutputRootAttrs() []xml.Attr {
	return []xml.Attr{{Name: xml.Name{Local: "generator-info-name"}, Value: "peartv"}}
}

// Filter streams nsources guide documents through the mapping and writes one
// combined, re-keyed document to out. All surviving channel nodes land before
// any programme node. The first source to present a mapped channel owns that
// id; other sources' copies of the channel and its programmes are dropped as
// duplicates. A mapped id no source declares a channel node for emits no
// programmes either.
func Filter(m *Mapping, nsources int, open SourceOpener, out io.Writer, cfg FilterConfig) (Stats, error) {
	f := &filterRun{m: m, cfg: cfg, emittedBy: make(map[string]int)}
	if cfg.HorizonDays > 0 {
		now := cfg.Now
		if now.IsZero() {
			now = time.Now()
		}
		f.cutoff = now.AddDate(0, 0, cfg.HorizonDays)
	}

	w := xmltv.NewWriter(out, OutputRootAttrs())
	if err := w.Start(); err != nil {
		return f.stats, err
	}
	f.emit = w.Write
	var buffered []*xmltv.Node
	if cfg.Sort {
		f.emit = func(n *xmltv.Node) error {
			buffered = append(buffered, n)
			return nil
		}
	}

	for i := 0; i < nsources; i++ {
		if err := f.pass(i, open, f.channelNode); err != nil {
			return f.stats, fmt.Errorf("filter guide source %d channels: %w", i, err)
		}
	}
	for i := 0; i < nsources; i++ {
		if err := f.pass(i, open, f.programmeNode); err != nil {
			return f.stats, fmt.Errorf("filter guide source %d programmes: %w", i, err)
		}
	}

	if cfg.Sort {
		sortNodes(buffered)
		for _, n := range buffered {
			if err := w.Write(n); err != nil {
				return f.stats, err
			}
		}
	}
	return f.stats, w.Close()
}

type filterRun struct {
	m         *Mapping
	cfg       FilterConfig
	cutoff    time.Time
	stats     Stats
	emit      func(*xmltv.Node) error
	emittedBy map[string]int // guide id lower -> source that emitted its channel
}

func (f *filterRun) pass(i int, open SourceOpener, handle func(int, *xmltv.Node) error) error {
	rc, err := open(i)
	if err != nil {
		return err
	}
	defer rc.Close()
	r := xmltv.NewReader(rc)
	for {
		n, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handle(i, n); err != nil {
			return err
		}
	}
}

func (f *filterRun) channelNode(source int, n *xmltv.Node) error {
	if !n.IsChannel() {
		return nil
	}
	idLower := strings.ToLower(strings.TrimSpace(n.Attr("id")))
	b, ok := f.m.Lookup(idLower)
	if !ok {
		f.stats.DroppedUnmapped++
		return nil
	}
	if _, taken := f.emittedBy[idLower]; taken {
		f.stats.DroppedUnowned++
		return nil
	}
	f.emittedBy[idLower] = source
	n.SetAttr("id", b.OutputID)
	f.stats.Channels++
	return f.emit(n)
}

func (f *filterRun) programmeNode(source int, n *xmltv.Node) error {
	if !n.IsProgramme() {
		return nil
	}
	refLower := strings.ToLower(strings.TrimSpace(n.Attr("channel")))
	b, ok := f.m.Lookup(refLower)
	if !ok {
		f.stats.DroppedUnmapped++
		return nil
	}
	owner, present := f.emittedBy[refLower]
	if !present || owner != source {
		f.stats.DroppedUnowned++
		return nil
	}

	// Horizon: drop far-future starts; unparseable stamps pass through.
	start, startOff, startOK := xmltv.ParseTimestamp(n.Attr("start"))
	if startOK && !f.cutoff.IsZero() && start.After(f.cutoff) {
		f.stats.DroppedHorizon++
		return nil
	}

	if f.cfg.TimezoneShift != 0 {
		if startOK {
			n.SetAttr("start", xmltv.FormatTimestamp(start.Add(f.cfg.TimezoneShift), startOff))
		}
		if stop, stopOff, ok := xmltv.ParseTimestamp(n.Attr("stop")); ok {
			n.SetAttr("stop", xmltv.FormatTimestamp(stop.Add(f.cfg.TimezoneShift), stopOff))
		}
	}
	if f.cfg.Translator != nil {
		f.translateProgramme(n)
	}
	n.SetAttr("channel", b.OutputID)
	f.stats.Programmes++
	return f.emit(n)
}

// translateProgramme rewrites title, sub-title, and desc text through the
// configured converter. Any failure leaves the node as scanned.
func (f *filterRun) translateProgramme(n *xmltv.Node) {
	kids, err := n.Children()
	if err != nil {
		return
	}
	changed := false
	for i := range kids {
		switch kids[i].XMLName.Local {
		case "title", "sub-title", "desc":
		default:
			continue
		}
		txt := kids[i].Text()
		if txt == "" {
			continue
		}
		got, err := f.cfg.Translator.Translate(txt)
		if err != nil || got == txt {
			continue
		}
		kids[i].SetText(got)
		changed = true
	}
	if !changed {
		return
	}
	inner, err := xmltv.MarshalChildren(kids)
	if err != nil {
		return
	}
	n.Inner = inner
}

// sortNodes orders buffered output for reproducible diffs: channels first by
// id, then programmes by channel, start, stop.
func sortNodes(nodes []*xmltv.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsChannel() != b.IsChannel() {
			return a.IsChannel()
		}
		if a.IsChannel() {
			return a.Attr("id") < b.Attr("id")
		}
		if ac, bc := a.Attr("channel"), b.Attr("channel"); ac != bc {
			return ac < bc
		}
		if as, bs := a.Attr("start"), b.Attr("start"); as != bs {
			return as < bs
		}
		return a.Attr("stop") < b.Attr("stop")
	})
}
