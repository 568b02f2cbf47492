package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.OutputPath != "epg.xml" {
		t.Errorf("OutputPath = %q", c.OutputPath)
	}
	if c.CacheTTL != 24*time.Hour {
		t.Errorf("CacheTTL = %v", c.CacheTTL)
	}
	if c.FuzzyThreshold != 0.8 {
		t.Errorf("FuzzyThreshold = %v", c.FuzzyThreshold)
	}
	if c.HorizonDays != 7 {
		t.Errorf("HorizonDays = %d", c.HorizonDays)
	}
	if c.FetchRetries != 3 || c.FetchRate != 2 {
		t.Errorf("fetch defaults: retries=%d rate=%v", c.FetchRetries, c.FetchRate)
	}
	if c.ListenAddr != ":8080" || c.RefreshEvery != 6*time.Hour {
		t.Errorf("serve defaults: %q %v", c.ListenAddr, c.RefreshEvery)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("PEARTV_PLAYLIST_URL", "http://host/pl.m3u")
	os.Setenv("PEARTV_GUIDE_URLS", "http://host/a.xml, http://host/b.xml.gz")
	os.Setenv("PEARTV_HORIZON_DAYS", "3")
	os.Setenv("PEARTV_TZ_SHIFT", "-5h30m")
	os.Setenv("PEARTV_FUZZY_THRESHOLD", "0.9")
	os.Setenv("PEARTV_SORT_OUTPUT", "true")
	os.Setenv("PEARTV_BLACKLIST", "Shop 24, Teleshopping")
	os.Setenv("PEARTV_TRANSLATE", "t2s")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.PlaylistURL != "http://host/pl.m3u" {
		t.Errorf("PlaylistURL = %q", c.PlaylistURL)
	}
	if len(c.GuideURLs) != 2 || c.GuideURLs[1] != "http://host/b.xml.gz" {
		t.Errorf("GuideURLs = %v", c.GuideURLs)
	}
	if c.HorizonDays != 3 {
		t.Errorf("HorizonDays = %d", c.HorizonDays)
	}
	if c.TimezoneShift != -(5*time.Hour + 30*time.Minute) {
		t.Errorf("TimezoneShift = %v", c.TimezoneShift)
	}
	if c.FuzzyThreshold != 0.9 || !c.SortOutput {
		t.Errorf("threshold=%v sort=%v", c.FuzzyThreshold, c.SortOutput)
	}
	if len(c.Blacklist) != 2 || c.Blacklist[0] != "Shop 24" {
		t.Errorf("Blacklist = %v", c.Blacklist)
	}
	if c.Translate != "t2s" {
		t.Errorf("Translate = %q", c.Translate)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	os.Clearenv()
	dir := t.TempDir()
	path := filepath.Join(dir, "peartv.yaml")
	body := `playlist_url: http://host/pl.m3u
guide_urls:
  - http://host/guide.xml
output: /var/lib/peartv/epg.xml
cache_ttl: 36h
fuzzy_threshold: 0.75
horizon_days: 0
sort_output: true
blacklist: [adult, shop]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Setenv("PEARTV_CONFIG", path)
	// Environment still wins over the file.
	os.Setenv("PEARTV_OUTPUT", "elsewhere.xml")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.PlaylistURL != "http://host/pl.m3u" || len(c.GuideURLs) != 1 {
		t.Errorf("sources: %q %v", c.PlaylistURL, c.GuideURLs)
	}
	if c.OutputPath != "elsewhere.xml" {
		t.Errorf("env should win over file: OutputPath = %q", c.OutputPath)
	}
	if c.CacheTTL != 36*time.Hour || c.FuzzyThreshold != 0.75 {
		t.Errorf("ttl=%v threshold=%v", c.CacheTTL, c.FuzzyThreshold)
	}
	if c.HorizonDays != 0 {
		t.Errorf("explicit zero horizon must override the default: %d", c.HorizonDays)
	}
	if !c.SortOutput || len(c.Blacklist) != 2 {
		t.Errorf("sort=%v blacklist=%v", c.SortOutput, c.Blacklist)
	}
}

func TestLoadYAMLBadDuration(t *testing.T) {
	os.Clearenv()
	dir := t.TempDir()
	path := filepath.Join(dir, "peartv.yaml")
	if err := os.WriteFile(path, []byte("cache_ttl: yesterday\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Setenv("PEARTV_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func validConfig() *Config {
	c := defaults()
	c.PlaylistURL = "http://host/pl.m3u"
	c.GuideURLs = []string{"http://host/guide.xml"}
	return c
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing playlist", func(c *Config) { c.PlaylistURL = "" }},
		{"no guides", func(c *Config) { c.GuideURLs = nil }},
		{"bad scheme", func(c *Config) { c.PlaylistURL = "ftp://host/pl.m3u" }},
		{"bad guide scheme", func(c *Config) { c.GuideURLs = []string{"file:///etc/passwd"} }},
		{"threshold above one", func(c *Config) { c.FuzzyThreshold = 1.5 }},
		{"negative horizon", func(c *Config) { c.HorizonDays = -1 }},
		{"unknown translate", func(c *Config) { c.Translate = "zh" }},
		{"zero retries", func(c *Config) { c.FetchRetries = 0 }},
	}
	for _, tc := range cases {
		c := validConfig()
		tc.mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
}

func TestValidateLocalPaths(t *testing.T) {
	c := validConfig()
	c.PlaylistURL = "/data/playlist.m3u"
	c.GuideURLs = []string{"testdata/guide.xml"}
	if err := c.Validate(); err != nil {
		t.Fatalf("local paths rejected: %v", err)
	}
}

func TestTranslateMode(t *testing.T) {
	c := &Config{}
	if got := c.TranslateMode(); got != "" {
		t.Errorf("empty: %q", got)
	}
	c.Translate = "off"
	if got := c.TranslateMode(); got != "" {
		t.Errorf("off: %q", got)
	}
	c.Translate = " T2S "
	if got := c.TranslateMode(); got != "t2s" {
		t.Errorf("t2s: %q", got)
	}
}
