// Package pipeline wires one full reconciliation run: fetch the playlist and
// guide sources, build the guide index, match, filter, and atomically replace
// the output document.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/a-curious-pear/peartv/internal/config"
	"github.com/a-curious-pear/peartv/internal/epg"
	"github.com/a-curious-pear/peartv/internal/fetch"
	"github.com/a-curious-pear/peartv/internal/httpclient"
	"github.com/a-curious-pear/peartv/internal/log"
	"github.com/a-curious-pear/peartv/internal/metrics"
	"github.com/a-curious-pear/peartv/internal/playlist"
	"github.com/a-curious-pear/peartv/internal/store"
	"github.com/a-curious-pear/peartv/internal/translate"
	"github.com/a-curious-pear/peartv/internal/xmltv"
)

const pruneAge = 7 * 24 * time.Hour

// Options adjusts one run beyond what Config carries.
type Options struct {
	Force bool // ignore cached run state and cached mappings
}

// Result is what one run produced.
type Result struct {
	RunID      string
	Reused     string // "", "document", or "mapping"
	Report     *epg.Report
	Stats      epg.Stats
	OutputPath string
	OutputHash string
	Duration   time.Duration
}

// Run executes the pipeline once. The output file is replaced only on
// success; any failure leaves the previous document in place.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	logger := log.WithComponent("pipeline")
	runID := uuid.NewString()
	started := time.Now()
	logger.Info().Str("run_id", runID).Msg("run started")

	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			logger.Warn().Err(err).Msg("cache dir unavailable")
		}
	}

	statePath := store.RunStatePath(cfg.CacheDir)
	if !opts.Force {
		if prior, ok := store.LoadRunState(statePath); ok && prior.Fresh(cfg.CacheTTL, started) {
			logger.Info().
				Str("run_id", runID).
				Str("output", prior.OutputPath).
				Time("generated", prior.FinishedAt).
				Msg("cached output still fresh, skipping run")
			return &Result{
				RunID:      runID,
				Reused:     "document",
				Report:     reportFromState(prior),
				Stats:      epg.Stats{Channels: prior.ChannelsWritten, Programmes: prior.ProgrammesWritten},
				OutputPath: prior.OutputPath,
				OutputHash: prior.OutputHash,
				Duration:   time.Since(started),
			}, nil
		}
	}

	res, err := run(ctx, cfg, opts, logger, runID)
	st := &store.RunState{
		RunID:     runID,
		StartedAt: started,
	}
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		st.FinishedAt = time.Now()
		st.Outcome = "error"
		st.Error = err.Error()
		st.DurationMS = time.Since(started).Milliseconds()
		if serr := store.SaveRunState(statePath, st); serr != nil {
			metrics.StateSaveFailures.Inc()
		}
		logger.Error().Str("run_id", runID).Err(err).Msg("run failed")
		return nil, err
	}

	res.Duration = time.Since(started)
	st.FinishedAt = time.Now()
	st.Outcome = "ok"
	st.PlaylistChannels = res.Report.PlaylistChannels
	st.GuideChannels = res.Report.GuideChannels
	st.Matched = res.Report.Matched
	st.ByTier = tierCounts(res.Report)
	st.ChannelsWritten = res.Stats.Channels
	st.ProgrammesWritten = res.Stats.Programmes
	st.OutputPath = res.OutputPath
	st.OutputHash = res.OutputHash
	st.DurationMS = res.Duration.Milliseconds()
	if serr := store.SaveRunState(statePath, st); serr != nil {
		metrics.StateSaveFailures.Inc()
		logger.Warn().Err(serr).Msg("run state not saved")
	}

	metrics.RunsTotal.WithLabelValues("ok").Inc()
	metrics.RunDuration.Set(res.Duration.Seconds())
	metrics.LastRunTimestamp.Set(float64(st.FinishedAt.Unix()))
	logger.Info().
		Str("run_id", runID).
		Int("matched", res.Report.Matched).
		Int("channels", res.Stats.Channels).
		Int("programmes", res.Stats.Programmes).
		Dur("took", res.Duration).
		Msg("run finished")
	return res, nil
}

// Match fetches the sources and runs the cascade without touching the output
// document or the mapping cache, so the report always reflects the live
// sources. The match subcommand uses it.
func Match(ctx context.Context, cfg *config.Config) (*epg.Mapping, *epg.Report, error) {
	logger := log.WithComponent("pipeline")
	in, err := gather(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	overrides, err := epg.LoadOverrides(cfg.AliasOverridesPath)
	if err != nil {
		return nil, nil, err
	}
	ix, err := buildIndex(logger, in.guides)
	if err != nil {
		return nil, nil, err
	}
	matcher := &epg.Matcher{Threshold: cfg.FuzzyThreshold, Overrides: overrides}
	mapping, report := matcher.Match(in.channels, ix)
	return mapping, report, nil
}

// inputs is everything a run needs after the fetch stage.
type inputs struct {
	playlistHash string
	channels     []playlist.Channel
	guides       []*fetch.Result
}

// gather fetches the playlist and all guide sources concurrently, parses the
// playlist, and applies the blacklist. An empty playlist aborts the run; a
// broken guide source does not get that grace and fails the whole stage, so
// a half-fetched guide never silently shrinks the output.
func gather(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*inputs, error) {
	fetcher := fetch.New(fetch.Options{
		CacheDir: cfg.CacheDir,
		Client:   httpclient.WithTimeout(cfg.HTTPTimeout),
		Rate:     cfg.FetchRate,
		Retries:  cfg.FetchRetries,
	})

	var playlistRes *fetch.Result
	guideRes := make([]*fetch.Result, len(cfg.GuideURLs))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := fetcher.Fetch(gctx, cfg.PlaylistURL)
		if err != nil {
			return fmt.Errorf("playlist: %w", err)
		}
		playlistRes = r
		return nil
	})
	for i, u := range cfg.GuideURLs {
		i, u := i, u
		g.Go(func() error {
			r, err := fetcher.Fetch(gctx, u)
			if err != nil {
				return fmt.Errorf("guide source %d: %w", i, err)
			}
			guideRes[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	channels, err := parsePlaylist(playlistRes.Path)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("playlist %s: no channels found", cfg.PlaylistURL)
	}
	metrics.PlaylistChannels.Set(float64(len(channels)))
	logger.Info().Int("channels", len(channels)).Str("hash", playlistRes.Hash).Msg("playlist parsed")

	if len(cfg.Blacklist) > 0 {
		kept := applyBlacklist(channels, cfg.Blacklist)
		if dropped := len(channels) - len(kept); dropped > 0 {
			logger.Info().Int("dropped", dropped).Msg("blacklisted channels removed")
		}
		channels = kept
	}
	return &inputs{playlistHash: playlistRes.Hash, channels: channels, guides: guideRes}, nil
}

func run(ctx context.Context, cfg *config.Config, opts Options, logger zerolog.Logger, runID string) (*Result, error) {
	stage := time.Now()
	in, err := gather(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug().Dur("took", time.Since(stage)).Msg("sources ready")

	overrides, err := epg.LoadOverrides(cfg.AliasOverridesPath)
	if err != nil {
		return nil, err
	}

	mstore := openMappings(cfg, logger)
	if mstore != nil {
		defer mstore.Close()
	}

	stage = time.Now()
	mapping, report, reused, err := resolveMapping(ctx, cfg, opts, logger, mstore, in, overrides)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("bindings", mapping.Len()).Dur("took", time.Since(stage)).Msg("mapping resolved")
	if report.Matched == 0 {
		logger.Warn().
			Int("playlist_channels", report.PlaylistChannels).
			Int("guide_channels", report.GuideChannels).
			Msg("no channels matched; the output document will be empty")
	}
	for tier, n := range report.ByTier {
		metrics.MatchedChannels.WithLabelValues(string(tier)).Set(float64(n))
	}

	translator, err := translate.New(cfg.TranslateMode())
	if err != nil {
		return nil, err
	}

	stage = time.Now()
	stats, outputHash, err := writeOutput(cfg, mapping, in.guides, translator)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("programmes", stats.Programmes).Dur("took", time.Since(stage)).Msg("document written")
	metrics.ProgrammesWritten.Set(float64(stats.Programmes))
	metrics.ProgrammesDropped.WithLabelValues("unmapped").Set(float64(stats.DroppedUnmapped))
	metrics.ProgrammesDropped.WithLabelValues("horizon").Set(float64(stats.DroppedHorizon))
	metrics.ProgrammesDropped.WithLabelValues("duplicate").Set(float64(stats.DroppedUnowned))

	return &Result{
		RunID:      runID,
		Reused:     reused,
		Report:     report,
		Stats:      stats,
		OutputPath: cfg.OutputPath,
		OutputHash: outputHash,
	}, nil
}

func parsePlaylist(path string) ([]playlist.Channel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist spool: %w", err)
	}
	defer f.Close()
	channels, err := playlist.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	return channels, nil
}

// applyBlacklist drops channels whose identity fields compact to a
// blacklisted label.
func applyBlacklist(channels []playlist.Channel, blacklist []string) []playlist.Channel {
	deny := make(map[string]bool, len(blacklist))
	for _, b := range blacklist {
		if c := epg.Compact(b); c != "" {
			deny[c] = true
		}
	}
	kept := channels[:0:0]
	for _, ch := range channels {
		if deny[epg.Compact(ch.RawID)] || deny[epg.Compact(ch.RawName)] || deny[epg.Compact(ch.Display)] {
			continue
		}
		kept = append(kept, ch)
	}
	return kept
}

// openMappings opens the sqlite mapping cache. The cache is advisory, so a
// failure only logs.
func openMappings(cfg *config.Config, logger zerolog.Logger) *store.MappingStore {
	if cfg.CacheTTL <= 0 {
		return nil
	}
	s, err := store.OpenMappings(filepath.Join(cfg.CacheDir, "mappings.db"))
	if err != nil {
		logger.Warn().Err(err).Msg("mapping cache unavailable")
		return nil
	}
	return s
}

// resolveMapping reuses cached bindings for an unchanged playlist when
// allowed, otherwise scans the guides and runs the matcher.
func resolveMapping(ctx context.Context, cfg *config.Config, opts Options, logger zerolog.Logger, mstore *store.MappingStore, in *inputs, overrides map[string]string) (*epg.Mapping, *epg.Report, string, error) {
	if mstore != nil && !opts.Force {
		bindings, err := mstore.Load(ctx, in.playlistHash, time.Now().Add(-cfg.CacheTTL))
		if err != nil {
			logger.Warn().Err(err).Msg("mapping cache read failed, recomputing")
		} else if len(bindings) > 0 {
			logger.Info().Int("bindings", len(bindings)).Msg("reusing cached mapping")
			return epg.NewMapping(bindings), reportFromBindings(len(in.channels), bindings), "mapping", nil
		}
	}

	ix, err := buildIndex(logger, in.guides)
	if err != nil {
		return nil, nil, "", err
	}
	matcher := &epg.Matcher{Threshold: cfg.FuzzyThreshold, Overrides: overrides}
	mapping, report := matcher.Match(in.channels, ix)

	if mstore != nil {
		if err := mstore.Save(ctx, in.playlistHash, mapping.Bindings()); err != nil {
			logger.Warn().Err(err).Msg("mapping cache write failed")
		} else if err := mstore.Prune(ctx, time.Now().Add(-pruneAge)); err != nil {
			logger.Warn().Err(err).Msg("mapping cache prune failed")
		}
	}
	return mapping, report, "", nil
}

// buildIndex scans every guide source once. A source the fetch stage spooled
// but the decoder cannot read fails the run; the filter stage would trip over
// the same bytes anyway.
func buildIndex(logger zerolog.Logger, guides []*fetch.Result) (*epg.Index, error) {
	ix := epg.NewIndex()
	for i, gr := range guides {
		n, err := indexSource(ix, i, gr.Path)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("source", i).Int("declared", n).Msg("guide source indexed")
	}
	metrics.GuideChannels.Set(float64(ix.Len()))
	return ix, nil
}

func indexSource(ix *epg.Index, ordinal int, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ix.AddSource(ordinal, xmltv.NewReader(f))
}

// writeOutput streams the filter into a pending file and replaces the output
// path only after a clean Close.
func writeOutput(cfg *config.Config, mapping *epg.Mapping, guideRes []*fetch.Result, translator translate.Translator) (epg.Stats, string, error) {
	var stats epg.Stats
	if dir := filepath.Dir(cfg.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return stats, "", fmt.Errorf("output dir: %w", err)
		}
	}
	pf, err := renameio.NewPendingFile(cfg.OutputPath, renameio.WithPermissions(0o644))
	if err != nil {
		return stats, "", fmt.Errorf("output: %w", err)
	}
	defer pf.Cleanup()

	h := sha256.New()
	open := func(i int) (io.ReadCloser, error) { return os.Open(guideRes[i].Path) }
	stats, err = epg.Filter(mapping, len(guideRes), open, io.MultiWriter(pf, h), epg.FilterConfig{
		HorizonDays:   cfg.HorizonDays,
		TimezoneShift: cfg.TimezoneShift,
		Translator:    translator,
		Sort:          cfg.SortOutput,
	})
	if err != nil {
		return stats, "", err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return stats, "", fmt.Errorf("replace output: %w", err)
	}
	return stats, hex.EncodeToString(h.Sum(nil)[:16]), nil
}

func reportFromBindings(nPlaylist int, bindings []epg.Binding) *epg.Report {
	r := &epg.Report{PlaylistChannels: nPlaylist, Matched: len(bindings), ByTier: map[epg.Tier]int{}}
	for _, b := range bindings {
		r.ByTier[b.Tier]++
	}
	return r
}

func reportFromState(st *store.RunState) *epg.Report {
	r := &epg.Report{
		PlaylistChannels: st.PlaylistChannels,
		GuideChannels:    st.GuideChannels,
		Matched:          st.Matched,
		ByTier:           map[epg.Tier]int{},
	}
	for tier, n := range st.ByTier {
		r.ByTier[epg.Tier(tier)] = n
	}
	return r
}

func tierCounts(r *epg.Report) map[string]int {
	if len(r.ByTier) == 0 {
		return nil
	}
	out := make(map[string]int, len(r.ByTier))
	for tier, n := range r.ByTier {
		out[string(tier)] = n
	}
	return out
}
