package epg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/a-curious-pear/peartv/internal/playlist"
	"github.com/a-curious-pear/peartv/internal/xmltv"
)

func buildIndex(t *testing.T, docs ...string) *Index {
	t.Helper()
	ix := NewIndex()
	for i, doc := range docs {
		if _, err := ix.AddSource(i, xmltv.NewReader(strings.NewReader(doc))); err != nil {
			t.Fatal(err)
		}
	}
	return ix
}

func TestIndexFirstDeclarationWins(t *testing.T) {
	ix := buildIndex(t, `<tv>
		<channel id="CNN.us"><display-name>CNN</display-name></channel>
		<channel id="cnn.US"><display-name>CNN Duplicate</display-name></channel>
	</tv>`)
	if ix.Len() != 1 {
		t.Fatalf("len: %d", ix.Len())
	}
	gc, ok := ix.Get("cnn.us")
	if !ok || gc.ID != "CNN.us" {
		t.Fatalf("channel: %+v", gc)
	}
	if diff := cmp.Diff([]string{"CNN"}, gc.DisplayNames); diff != "" {
		t.Errorf("display names (-want +got):\n%s", diff)
	}
}

func TestIndexMultiSourceOwnership(t *testing.T) {
	ix := buildIndex(t,
		`<tv><channel id="a"><display-name>A</display-name></channel></tv>`,
		`<tv>
			<channel id="a"><display-name>A Again</display-name></channel>
			<channel id="b"><display-name>B</display-name></channel>
		</tv>`,
	)
	a, _ := ix.Get("a")
	b, _ := ix.Get("b")
	if a.Source != 0 || b.Source != 1 {
		t.Fatalf("sources: a=%d b=%d", a.Source, b.Source)
	}
	if a.DisplayNames[0] != "A" {
		t.Fatalf("first declaration: %+v", a)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ix.IDs()); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestIndexSkipsIDLessChannels(t *testing.T) {
	ix := buildIndex(t, `<tv>
		<channel><display-name>No ID</display-name></channel>
		<channel id="ok"><display-name>OK</display-name></channel>
	</tv>`)
	if ix.Len() != 1 {
		t.Fatalf("len: %d", ix.Len())
	}
}

func TestMatcherExactID(t *testing.T) {
	ix := buildIndex(t, `<tv><channel id="espn.us"><display-name>ESPN</display-name></channel></tv>`)
	var m Matcher
	mapping, report := m.Match([]playlist.Channel{{RawID: "ESPN.us"}}, ix)
	if mapping.Len() != 1 {
		t.Fatalf("mapping: %d", mapping.Len())
	}
	b, ok := mapping.Lookup("ESPN.US")
	if !ok || b.Tier != TierID {
		t.Fatalf("binding: %+v ok=%v", b, ok)
	}
	// Output keeps the playlist's original case, not the guide's.
	if b.OutputID != "ESPN.us" {
		t.Fatalf("output id: %q", b.OutputID)
	}
	if report.Matched != 1 || report.ByTier[TierID] != 1 {
		t.Errorf("report: %+v", report)
	}
}

func TestMatcherNameTier(t *testing.T) {
	ix := buildIndex(t, `<tv><channel id="aljazeera"><display-name>Al Jazeera</display-name></channel></tv>`)
	var m Matcher
	mapping, _ := m.Match([]playlist.Channel{{RawName: "Al Jazeera HD"}}, ix)
	b, ok := mapping.Lookup("aljazeera")
	if !ok || b.Tier != TierName || b.OutputID != "Al Jazeera HD" {
		t.Fatalf("binding: %+v ok=%v", b, ok)
	}
}

func TestMatcherNameOnlyChannel(t *testing.T) {
	ix := buildIndex(t, `<tv><channel id="bbc1.uk"><display-name>BBC One</display-name></channel></tv>`)
	var m Matcher
	mapping, _ := m.Match([]playlist.Channel{{Display: "BBC One HD"}}, ix)
	b, ok := mapping.Lookup("bbc1.uk")
	if !ok || b.Tier != TierName || b.OutputID != "BBC One HD" {
		t.Fatalf("binding: %+v ok=%v", b, ok)
	}
}

func TestMatcherFuzzyTier(t *testing.T) {
	ix := buildIndex(t, `<tv><channel id="fox-news"><display-name>FoxNews</display-name></channel></tv>`)
	var m Matcher
	mapping, report := m.Match([]playlist.Channel{{RawName: "Fox News Channel"}}, ix)
	b, ok := mapping.Lookup("fox-news")
	if !ok || b.Tier != TierFuzzy {
		t.Fatalf("binding: %+v ok=%v", b, ok)
	}
	if b.Score < 0.8 || b.Score > 0.9 {
		t.Errorf("score: %v", b.Score)
	}
	if report.ByTier[TierFuzzy] != 1 {
		t.Errorf("report: %+v", report)
	}
}

func TestMatcherFuzzyBelowThreshold(t *testing.T) {
	ix := buildIndex(t, `<tv><channel id="zdf.de"><display-name>ZDF</display-name></channel></tv>`)
	var m Matcher
	mapping, report := m.Match([]playlist.Channel{{RawName: "Cartoon Network"}}, ix)
	if mapping.Len() != 0 {
		t.Fatalf("mapping: %+v", mapping.Bindings())
	}
	if len(report.Unmatched) != 1 || report.Unmatched[0].Reason != "no guide candidate" {
		t.Fatalf("unmatched: %+v", report.Unmatched)
	}
}

func TestMatcherFirstClaim(t *testing.T) {
	ix := buildIndex(t, `<tv><channel id="cnn.us"><display-name>CNN</display-name></channel></tv>`)
	var m Matcher
	mapping, report := m.Match([]playlist.Channel{
		{RawID: "CNN.us"},
		{RawID: "CNN-Intl", RawName: "CNN"},
	}, ix)
	if mapping.Len() != 1 {
		t.Fatalf("mapping: %d", mapping.Len())
	}
	if got, _ := mapping.OutputIDFor("cnn.us"); got != "CNN.us" {
		t.Fatalf("output id: %q", got)
	}
	if len(report.Unmatched) != 1 || report.Unmatched[0].Channel != "CNN-Intl" {
		t.Fatalf("unmatched: %+v", report.Unmatched)
	}
}

func TestMatcherDuplicatePlaylistID(t *testing.T) {
	ix := buildIndex(t, `<tv>
		<channel id="one"><display-name>One</display-name></channel>
		<channel id="two"><display-name>One Plus</display-name></channel>
	</tv>`)
	var m Matcher
	mapping, report := m.Match([]playlist.Channel{
		{RawID: "one"},
		{RawID: "ONE"},
	}, ix)
	if mapping.Len() != 1 {
		t.Fatalf("mapping: %d", mapping.Len())
	}
	if len(report.Unmatched) != 1 || report.Unmatched[0].Reason != "duplicate playlist id" {
		t.Fatalf("unmatched: %+v", report.Unmatched)
	}
}

func TestMatcherOverride(t *testing.T) {
	ix := buildIndex(t, `<tv>
		<channel id="sport-hd.de"><display-name>Sport</display-name></channel>
		<channel id="espn.us"><display-name>ESPN</display-name></channel>
	</tv>`)
	m := Matcher{Overrides: map[string]string{"espn": "sport-hd.de"}}
	mapping, _ := m.Match([]playlist.Channel{{RawID: "ESPN"}}, ix)
	b, ok := mapping.Lookup("sport-hd.de")
	if !ok || b.Tier != TierOverride || b.OutputID != "ESPN" {
		t.Fatalf("binding: %+v ok=%v", b, ok)
	}
	if _, taken := mapping.Lookup("espn.us"); taken {
		t.Fatal("espn.us should stay unclaimed")
	}
}

func TestMatcherOverrideMissingTargetFallsThrough(t *testing.T) {
	ix := buildIndex(t, `<tv><channel id="espn.us"><display-name>ESPN</display-name></channel></tv>`)
	m := Matcher{Overrides: map[string]string{"espn": "gone.de"}}
	mapping, _ := m.Match([]playlist.Channel{{RawID: "ESPN"}}, ix)
	b, ok := mapping.Lookup("espn.us")
	if !ok || b.Tier != TierName {
		t.Fatalf("binding: %+v ok=%v", b, ok)
	}
}

func TestMatcherDeterminism(t *testing.T) {
	doc := `<tv>
		<channel id="espn.us"><display-name>ESPN</display-name></channel>
		<channel id="aljazeera"><display-name>Al Jazeera</display-name></channel>
		<channel id="fox-news"><display-name>FoxNews</display-name></channel>
		<channel id="cnn.us"><display-name>CNN</display-name></channel>
	</tv>`
	channels := []playlist.Channel{
		{RawID: "ESPN.us"},
		{RawName: "Al Jazeera HD"},
		{RawName: "Fox News Channel"},
		{RawID: "CNN.us"},
		{RawName: "CNN"},
	}
	run := func() []Binding {
		var m Matcher
		mapping, _ := m.Match(channels, buildIndex(t, doc))
		return mapping.Bindings()
	}
	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
}

func TestMatcherAtMostOne(t *testing.T) {
	doc := `<tv>
		<channel id="a"><display-name>Alpha</display-name></channel>
		<channel id="b"><display-name>Beta</display-name></channel>
		<channel id="c"><display-name>Gamma</display-name></channel>
	</tv>`
	channels := []playlist.Channel{
		{RawID: "A"},
		{RawID: "a "},
		{RawName: "Alpha"},
		{RawID: "B", RawName: "Beta"},
		{Display: "Gamma HD"},
		{Display: "Beta"},
	}
	var m Matcher
	mapping, _ := m.Match(channels, buildIndex(t, doc))
	seenGuide := map[string]bool{}
	seenOut := map[string]bool{}
	for _, b := range mapping.Bindings() {
		if seenGuide[b.GuideID] {
			t.Fatalf("guide id %q bound twice", b.GuideID)
		}
		seenGuide[b.GuideID] = true
		out := strings.ToLower(b.OutputID)
		if seenOut[out] {
			t.Fatalf("output id %q bound twice", b.OutputID)
		}
		seenOut[out] = true
	}
}

func TestNewMappingDropsConflicts(t *testing.T) {
	m := NewMapping([]Binding{
		{GuideID: "A.us", OutputID: "One", Tier: TierID, Score: 1},
		{GuideID: "a.us", OutputID: "Two", Tier: TierID, Score: 1},
		{GuideID: "b.us", OutputID: "ONE", Tier: TierName, Score: 1},
		{GuideID: "c.us", OutputID: "Three", Tier: TierFuzzy, Score: 0.9},
		{GuideID: "", OutputID: "Four", Tier: TierID, Score: 1},
	})
	if m.Len() != 2 {
		t.Fatalf("len: %d (%+v)", m.Len(), m.Bindings())
	}
	if got, _ := m.OutputIDFor("A.US"); got != "One" {
		t.Fatalf("lookup: %q", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	data := `{"Fox News Channel": "Fox-News.US", "  ": "x", "Empty": ""}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadOverrides(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"fox news channel": "fox-news.us"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("overrides (-want +got):\n%s", diff)
	}

	if _, err := LoadOverrides(path + ".missing"); err == nil {
		t.Fatal("missing file should error")
	}
	if got, err := LoadOverrides(""); err != nil || got != nil {
		t.Fatalf("empty path: %v %v", got, err)
	}
}
