package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/a-curious-pear/peartv/internal/safeurl"
)

// Config holds every knob the pipeline accepts. Values come from defaults,
// then an optional YAML file, then environment variables; CLI flags override
// individual fields on top. No component reads the environment directly.
type Config struct {
	// Sources
	PlaylistURL string   // M3U playlist: http(s) URL or local path
	GuideURLs   []string // XMLTV sources, scanned in order; first source to declare an id owns it

	// Output
	OutputPath string // filtered guide destination (written atomically)
	SortOutput bool   // stable-sort emitted nodes by id for reproducible diffs

	// Caching
	CacheDir string        // spooled guide bodies, fetch state, run state, mapping DB
	CacheTTL time.Duration // advisory freshness window for run/mapping reuse; 0 disables reuse

	// Matching
	FuzzyThreshold     float64  // minimum similarity ratio for the fuzzy tier
	Blacklist          []string // labels excluded from matching (compared in compact form)
	AliasOverridesPath string   // optional JSON map of normalized label -> guide id

	// Rewriting
	HorizonDays   int           // drop programmes starting after now+N days; 0 = no horizon
	TimezoneShift time.Duration // shift parseable programme timestamps by this offset
	Translate     string        // "" (off), "t2s", or "s2t" programme text conversion

	// Fetching
	HTTPTimeout  time.Duration // per-request timeout
	FetchRate    float64       // max requests per second across all sources
	FetchRetries int           // attempts per source before the stage fails

	// Serve mode
	ListenAddr   string
	RefreshEvery time.Duration

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load builds a Config from defaults, the optional YAML file (PEARTV_CONFIG or
// ./peartv.yaml), then PEARTV_* environment variables. Call LoadEnvFile(".env")
// first to pick up a .env file.
func Load() (*Config, error) {
	c := defaults()

	path := os.Getenv("PEARTV_CONFIG")
	if path == "" {
		if _, err := os.Stat("peartv.yaml"); err == nil {
			path = "peartv.yaml"
		}
	}
	if path != "" {
		if err := loadFileInto(path, c); err != nil {
			return nil, err
		}
	}

	applyEnv(c)
	return c, nil
}

func defaults() *Config {
	return &Config{
		OutputPath:     "epg.xml",
		CacheDir:       "cache",
		CacheTTL:       24 * time.Hour,
		FuzzyThreshold: 0.8,
		HorizonDays:    7,
		HTTPTimeout:    45 * time.Second,
		FetchRate:      2,
		FetchRetries:   3,
		ListenAddr:     ":8080",
		RefreshEvery:   6 * time.Hour,
	}
}

func applyEnv(c *Config) {
	c.PlaylistURL = getEnv("PEARTV_PLAYLIST_URL", c.PlaylistURL)
	c.GuideURLs = getEnvList("PEARTV_GUIDE_URLS", c.GuideURLs)
	c.OutputPath = getEnv("PEARTV_OUTPUT", c.OutputPath)
	c.SortOutput = getEnvBool("PEARTV_SORT_OUTPUT", c.SortOutput)
	c.CacheDir = getEnv("PEARTV_CACHE_DIR", c.CacheDir)
	c.CacheTTL = getEnvDuration("PEARTV_CACHE_TTL", c.CacheTTL)
	c.FuzzyThreshold = getEnvFloat("PEARTV_FUZZY_THRESHOLD", c.FuzzyThreshold)
	c.Blacklist = getEnvList("PEARTV_BLACKLIST", c.Blacklist)
	c.AliasOverridesPath = getEnv("PEARTV_ALIAS_OVERRIDES", c.AliasOverridesPath)
	c.HorizonDays = getEnvInt("PEARTV_HORIZON_DAYS", c.HorizonDays)
	c.TimezoneShift = getEnvDuration("PEARTV_TZ_SHIFT", c.TimezoneShift)
	c.Translate = getEnv("PEARTV_TRANSLATE", c.Translate)
	c.HTTPTimeout = getEnvDuration("PEARTV_HTTP_TIMEOUT", c.HTTPTimeout)
	c.FetchRate = getEnvFloat("PEARTV_FETCH_RATE", c.FetchRate)
	c.FetchRetries = getEnvInt("PEARTV_FETCH_RETRIES", c.FetchRetries)
	c.ListenAddr = getEnv("PEARTV_LISTEN", c.ListenAddr)
	c.RefreshEvery = getEnvDuration("PEARTV_REFRESH_EVERY", c.RefreshEvery)
	c.LogLevel = getEnv("PEARTV_LOG_LEVEL", c.LogLevel)
	c.LogPretty = getEnvBool("PEARTV_LOG_PRETTY", c.LogPretty)
}

// Validate rejects configs the pipeline cannot run with. Sources must be
// http(s) URLs or plain local paths; file:// and other schemes are refused.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PlaylistURL) == "" {
		return fmt.Errorf("config: playlist URL is required (PEARTV_PLAYLIST_URL)")
	}
	if err := checkSource(c.PlaylistURL); err != nil {
		return fmt.Errorf("config: playlist: %w", err)
	}
	if len(c.GuideURLs) == 0 {
		return fmt.Errorf("config: at least one guide URL is required (PEARTV_GUIDE_URLS)")
	}
	for _, u := range c.GuideURLs {
		if err := checkSource(u); err != nil {
			return fmt.Errorf("config: guide: %w", err)
		}
	}
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("config: fuzzy threshold %v outside [0,1]", c.FuzzyThreshold)
	}
	if c.HorizonDays < 0 {
		return fmt.Errorf("config: horizon days %d is negative", c.HorizonDays)
	}
	switch strings.ToLower(strings.TrimSpace(c.Translate)) {
	case "", "off", "t2s", "s2t":
	default:
		return fmt.Errorf("config: translate %q not one of off, t2s, s2t", c.Translate)
	}
	if c.FetchRetries < 1 {
		return fmt.Errorf("config: fetch retries %d < 1", c.FetchRetries)
	}
	return nil
}

// TranslateMode returns the normalized translation conversion, "" when off.
func (c *Config) TranslateMode() string {
	v := strings.ToLower(strings.TrimSpace(c.Translate))
	if v == "off" {
		return ""
	}
	return v
}

func checkSource(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("empty source")
	}
	if strings.Contains(s, "://") {
		if !safeurl.IsHTTPOrHTTPS(s) {
			return fmt.Errorf("%s: only http(s) URLs or local paths are allowed", s)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated env value into trimmed non-empty items.
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
