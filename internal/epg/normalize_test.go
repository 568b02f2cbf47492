package epg

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/a-curious-pear/peartv/internal/playlist"
)

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ESPN.us", "espn.us"},
		{"  Fox   News ", "fox news"},
		{"AL JAZEERA", "al jazeera"},
		{"Tab\tand\nnewline", "tab and newline"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"ESPN.us", " Fox  News Channel ", "Al Jazeera HD", "CCTV-5 体育", ""}
	for _, s := range inputs {
		once := Normalize(s)
		if twice := Normalize(once); twice != once {
			t.Errorf("%q: %q != %q", s, twice, once)
		}
	}
}

func TestCompact(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Fox News!", "foxnews"},
		{"ESPN.us", "espnus"},
		{"BBC One", "bbcone"},
		{"...", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Compact(tc.in); got != tc.want {
			t.Errorf("Compact(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestVariants(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		// Compact comes from the whole label, so "foxnews" is absent.
		{"Fox News Channel", []string{"fox news channel", "foxnewschannel", "fox news"}},
		{"Al Jazeera HD", []string{"al jazeera hd", "aljazeerahd", "al jazeera"}},
		// Suffix stripping repeats until nothing matches.
		{"Discovery Channel HD", []string{"discovery channel hd", "discoverychannelhd", "discovery channel", "discovery"}},
		{"ESPN.us", []string{"espn.us", "espnus"}},
		// Single words never strip, even when they are a suffix word.
		{"HD", []string{"hd"}},
		{"MTV", []string{"mtv"}},
		{"", nil},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, Variants(tc.in)); diff != "" {
			t.Errorf("Variants(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestAliases(t *testing.T) {
	ch := playlist.Channel{RawID: "ESPN.us", RawName: "ESPN HD", Display: "ESPN"}
	want := []string{"espn.us", "espnus", "espn hd", "espnhd", "espn"}
	if diff := cmp.Diff(want, Aliases(ch)); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
}

func TestAliasesSupersetIdentity(t *testing.T) {
	channels := []playlist.Channel{
		{RawID: "ESPN.us"},
		{RawID: "Fox News Channel", RawName: "FNC"},
		{RawID: "bbc-one.uk", Display: "BBC One"},
	}
	for _, ch := range channels {
		want := Normalize(ch.RawID)
		found := false
		for _, a := range Aliases(ch) {
			if a == want {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: %q not in %v", ch.RawID, want, Aliases(ch))
		}
	}
}

func TestAliasesEmpty(t *testing.T) {
	if got := Aliases(playlist.Channel{}); len(got) != 0 {
		t.Fatalf("aliases: %v", got)
	}
}

func TestRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"fox news", "foxnews", 0.875},
		{"same", "same", 1},
		{"", "", 1},
		{"abc", "", 0},
		{"", "abc", 0},
		{"abc", "xyz", 0},
		{"kitten", "sitting", 1 - 3.0/7.0},
	}
	for _, tc := range cases {
		if got := Ratio(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Ratio(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestRatioSymmetric(t *testing.T) {
	pairs := [][2]string{{"fox news", "foxnews"}, {"espn", "espn2"}, {"abc", "xyz"}}
	for _, p := range pairs {
		if Ratio(p[0], p[1]) != Ratio(p[1], p[0]) {
			t.Errorf("Ratio(%q, %q) not symmetric", p[0], p[1])
		}
	}
}
