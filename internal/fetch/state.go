package fetch

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/renameio/v2"
)

// SourceState is the durable per-source checkpoint holding cache validators.
// Path convention: <cache>/spool/<key>.state.json next to the spool file.
// The state is advisory: corrupt or missing files mean a full refetch, never
// an error.
type SourceState struct {
	SourceKey    string    `json:"source_key"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	// ContentHash is a short sha256 of the decompressed body so provider-side
	// changes are detected even when ETag/Last-Modified are absent.
	ContentHash string    `json:"content_hash,omitempty"`
	Compression string    `json:"compression,omitempty"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
	Size        int64     `json:"size,omitempty"`
}

// LoadState reads the state file for a source, returning a fresh state when
// the file is missing, unparseable, or belongs to a different source key.
func LoadState(path, key string) *SourceState {
	data, err := os.ReadFile(path)
	if err != nil {
		return &SourceState{SourceKey: key}
	}
	var s SourceState
	if err := json.Unmarshal(data, &s); err != nil {
		return &SourceState{SourceKey: key}
	}
	if s.SourceKey != key {
		return &SourceState{SourceKey: key}
	}
	return &s
}

// Save writes the state atomically so a crash never leaves a torn file.
func (s *SourceState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
