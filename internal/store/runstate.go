// Package store persists run artifacts across invocations: a JSON record of
// the last run and a sqlite cache of channel mappings keyed by playlist
// content. Both are advisory; a missing, stale, or corrupt artifact means
// recompute, never failure.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// RunStatePath is where the run record lives inside a cache directory.
func RunStatePath(cacheDir string) string {
	return filepath.Join(cacheDir, "runstate.json")
}

// RunState records the outcome of one pipeline run for the status endpoint
// and for freshness gating of the next run.
type RunState struct {
	RunID             string         `json:"run_id"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	Outcome           string         `json:"outcome"` // "ok" or "error"
	Error             string         `json:"error,omitempty"`
	PlaylistChannels  int            `json:"playlist_channels"`
	GuideChannels     int            `json:"guide_channels"`
	Matched           int            `json:"matched"`
	ByTier            map[string]int `json:"by_tier,omitempty"`
	ChannelsWritten   int            `json:"channels_written"`
	ProgrammesWritten int            `json:"programmes_written"`
	OutputPath        string         `json:"output_path"`
	OutputHash        string         `json:"output_hash,omitempty"`
	DurationMS        int64          `json:"duration_ms"`
}

// Fresh reports whether the recorded run succeeded within ttl of now and its
// output file is still in place.
func (st *RunState) Fresh(ttl time.Duration, now time.Time) bool {
	if st == nil || st.Outcome != "ok" || ttl <= 0 {
		return false
	}
	if now.Sub(st.FinishedAt) >= ttl {
		return false
	}
	if st.OutputPath == "" {
		return false
	}
	_, err := os.Stat(st.OutputPath)
	return err == nil
}

// SaveRunState atomically replaces the run record at path.
func SaveRunState(path string, st *RunState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	return nil
}

// LoadRunState reads a prior run record. Missing or corrupt files report
// ok=false; the caller recomputes.
func LoadRunState(path string) (*RunState, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false
	}
	return &st, true
}
