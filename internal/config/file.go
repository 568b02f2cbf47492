package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for the YAML layer. Durations are strings so the
// file can say "36h" the same way the environment does.
type fileConfig struct {
	PlaylistURL    string   `yaml:"playlist_url"`
	GuideURLs      []string `yaml:"guide_urls"`
	Output         string   `yaml:"output"`
	SortOutput     *bool    `yaml:"sort_output"`
	CacheDir       string   `yaml:"cache_dir"`
	CacheTTL       string   `yaml:"cache_ttl"`
	FuzzyThreshold *float64 `yaml:"fuzzy_threshold"`
	Blacklist      []string `yaml:"blacklist"`
	AliasOverrides string   `yaml:"alias_overrides"`
	HorizonDays    *int     `yaml:"horizon_days"`
	TimezoneShift  string   `yaml:"timezone_shift"`
	Translate      string   `yaml:"translate"`
	HTTPTimeout    string   `yaml:"http_timeout"`
	FetchRate      *float64 `yaml:"fetch_rate"`
	FetchRetries   *int     `yaml:"fetch_retries"`
	Listen         string   `yaml:"listen"`
	RefreshEvery   string   `yaml:"refresh_every"`
	LogLevel       string   `yaml:"log_level"`
	LogPretty      *bool    `yaml:"log_pretty"`
}

// loadFileInto reads a YAML config file and applies every set field onto c.
// Unset fields keep their current (default) values.
func loadFileInto(path string, c *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setStr(&c.PlaylistURL, f.PlaylistURL)
	if len(f.GuideURLs) > 0 {
		c.GuideURLs = f.GuideURLs
	}
	setStr(&c.OutputPath, f.Output)
	setBool(&c.SortOutput, f.SortOutput)
	setStr(&c.CacheDir, f.CacheDir)
	if err := setDur(&c.CacheTTL, f.CacheTTL); err != nil {
		return fmt.Errorf("config: %s: cache_ttl: %w", path, err)
	}
	if f.FuzzyThreshold != nil {
		c.FuzzyThreshold = *f.FuzzyThreshold
	}
	if len(f.Blacklist) > 0 {
		c.Blacklist = f.Blacklist
	}
	setStr(&c.AliasOverridesPath, f.AliasOverrides)
	if f.HorizonDays != nil {
		c.HorizonDays = *f.HorizonDays
	}
	if err := setDur(&c.TimezoneShift, f.TimezoneShift); err != nil {
		return fmt.Errorf("config: %s: timezone_shift: %w", path, err)
	}
	setStr(&c.Translate, f.Translate)
	if err := setDur(&c.HTTPTimeout, f.HTTPTimeout); err != nil {
		return fmt.Errorf("config: %s: http_timeout: %w", path, err)
	}
	if f.FetchRate != nil {
		c.FetchRate = *f.FetchRate
	}
	if f.FetchRetries != nil {
		c.FetchRetries = *f.FetchRetries
	}
	setStr(&c.ListenAddr, f.Listen)
	if err := setDur(&c.RefreshEvery, f.RefreshEvery); err != nil {
		return fmt.Errorf("config: %s: refresh_every: %w", path, err)
	}
	setStr(&c.LogLevel, f.LogLevel)
	setBool(&c.LogPretty, f.LogPretty)
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDur(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
