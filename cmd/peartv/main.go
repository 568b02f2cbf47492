// Command peartv reconciles an IPTV playlist with XMLTV guide sources and
// publishes one filtered guide keyed by the playlist's channel ids.
//
//	run    One-shot: fetch, match, filter, write the output document. For cron/systemd timers.
//	match  Fetch and match only, no output document; print the binding report (-json for machines)
//	probe  Check every configured source: reachability, HTTP status, compression, size
//	serve  HTTP server: /guide.xml, /status.json, /healthz, /metrics, plus a periodic refresh
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/a-curious-pear/peartv/internal/config"
	"github.com/a-curious-pear/peartv/internal/epg"
	"github.com/a-curious-pear/peartv/internal/httpclient"
	"github.com/a-curious-pear/peartv/internal/log"
	"github.com/a-curious-pear/peartv/internal/pipeline"
	"github.com/a-curious-pear/peartv/internal/probe"
	"github.com/a-curious-pear/peartv/internal/server"
)

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s <run|match|probe|serve> [flags]\n", os.Args[0])
	fmt.Fprintf(w, "  run    Fetch sources, match channels, write the filtered guide once\n")
	fmt.Fprintf(w, "  match  Match only; print which playlist channel bound to which guide id and why\n")
	fmt.Fprintf(w, "  probe  Check configured sources without writing anything\n")
	fmt.Fprintf(w, "  serve  Serve the guide over HTTP and refresh it on an interval\n")
	fmt.Fprintf(w, "Sources come from PEARTV_* env, .env, or peartv.yaml; flags override per run.\n")
}

func main() {
	_ = config.LoadEnvFile(".env")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runPlaylist := runCmd.String("playlist", "", "M3U playlist URL or path (default: PEARTV_PLAYLIST_URL)")
	runGuides := runCmd.String("guides", "", "Comma-separated XMLTV URLs or paths (default: PEARTV_GUIDE_URLS)")
	runOut := runCmd.String("out", "", "Output path (default: PEARTV_OUTPUT or epg.xml)")
	runForce := runCmd.Bool("force", false, "Recompute even when cached state is fresh")
	runSort := runCmd.Bool("sort", false, "Stable-sort emitted channels and programmes for reproducible diffs")
	runHorizon := runCmd.Int("horizon", -1, "Drop programmes starting more than N days out; 0 disables")
	runShift := runCmd.Duration("tz-shift", 0, "Shift programme timestamps, e.g. 8h or -5h30m")
	runTranslate := runCmd.String("translate", "", "Programme text conversion: t2s or s2t")
	runThreshold := runCmd.Float64("threshold", 0, "Fuzzy match cutoff in (0,1]")
	runBlacklist := runCmd.String("blacklist", "", "Comma-separated labels excluded from matching")
	runOverrides := runCmd.String("overrides", "", "JSON file pinning playlist labels to guide ids")

	matchCmd := flag.NewFlagSet("match", flag.ExitOnError)
	matchPlaylist := matchCmd.String("playlist", "", "M3U playlist URL or path (default: PEARTV_PLAYLIST_URL)")
	matchGuides := matchCmd.String("guides", "", "Comma-separated XMLTV URLs or paths (default: PEARTV_GUIDE_URLS)")
	matchThreshold := matchCmd.Float64("threshold", 0, "Fuzzy match cutoff in (0,1]")
	matchOverrides := matchCmd.String("overrides", "", "JSON file pinning playlist labels to guide ids")
	matchJSON := matchCmd.Bool("json", false, "Machine-readable report on stdout")

	probeCmd := flag.NewFlagSet("probe", flag.ExitOnError)
	probeTimeout := probeCmd.Duration("timeout", 15*time.Second, "Timeout per source")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveListen := serveCmd.String("listen", "", "Listen address (default: PEARTV_LISTEN or :8080)")
	serveRefresh := serveCmd.Duration("refresh", 0, "Refresh interval (default: PEARTV_REFRESH_EVERY or 6h)")

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "peartv: %v\n", err)
		os.Exit(1)
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger := log.WithComponent("main")

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		if *runPlaylist != "" {
			cfg.PlaylistURL = *runPlaylist
		}
		if *runGuides != "" {
			cfg.GuideURLs = splitList(*runGuides)
		}
		if *runOut != "" {
			cfg.OutputPath = *runOut
		}
		if *runSort {
			cfg.SortOutput = true
		}
		if *runHorizon >= 0 {
			cfg.HorizonDays = *runHorizon
		}
		if *runShift != 0 {
			cfg.TimezoneShift = *runShift
		}
		if *runTranslate != "" {
			cfg.Translate = *runTranslate
		}
		if *runThreshold > 0 {
			cfg.FuzzyThreshold = *runThreshold
		}
		if *runBlacklist != "" {
			cfg.Blacklist = splitList(*runBlacklist)
		}
		if *runOverrides != "" {
			cfg.AliasOverridesPath = *runOverrides
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "peartv: %v\n", err)
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		res, err := pipeline.Run(ctx, cfg, pipeline.Options{Force: *runForce})
		if err != nil {
			logger.Error().Err(err).Msg("run failed")
			os.Exit(1)
		}
		printRunSummary(os.Stdout, res)

	case "match":
		_ = matchCmd.Parse(os.Args[2:])
		if *matchPlaylist != "" {
			cfg.PlaylistURL = *matchPlaylist
		}
		if *matchGuides != "" {
			cfg.GuideURLs = splitList(*matchGuides)
		}
		if *matchThreshold > 0 {
			cfg.FuzzyThreshold = *matchThreshold
		}
		if *matchOverrides != "" {
			cfg.AliasOverridesPath = *matchOverrides
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "peartv: %v\n", err)
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		mapping, report, err := pipeline.Match(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("match failed")
			os.Exit(1)
		}
		if *matchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(struct {
				Report   *epg.Report   `json:"report"`
				Bindings []epg.Binding `json:"bindings"`
			}{report, mapping.Bindings()})
		} else {
			printMatchReport(os.Stdout, mapping, report)
		}
		if report.Matched == 0 {
			os.Exit(1)
		}

	case "probe":
		_ = probeCmd.Parse(os.Args[2:])
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "peartv: %v\n", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), *probeTimeout+5*time.Second)
		defer cancel()
		results := probe.All(ctx, cfg, httpclient.WithTimeout(*probeTimeout))
		fmt.Print(probe.Format(results))
		for _, r := range results {
			if r.Status != probe.StatusOK {
				os.Exit(1)
			}
		}

	case "serve":
		_ = serveCmd.Parse(os.Args[2:])
		if *serveListen != "" {
			cfg.ListenAddr = *serveListen
		}
		if *serveRefresh > 0 {
			cfg.RefreshEvery = *serveRefresh
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "peartv: %v\n", err)
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := server.New(cfg).Run(ctx); err != nil {
			logger.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printRunSummary(w io.Writer, res *pipeline.Result) {
	if res.Reused == "document" {
		fmt.Fprintf(w, "Reused cached document at %s (still fresh; -force recomputes)\n", res.OutputPath)
		return
	}
	fmt.Fprintf(w, "Matched %d/%d playlist channels%s\n",
		res.Report.Matched, res.Report.PlaylistChannels, tierSummary(res.Report.ByTier))
	fmt.Fprintf(w, "Wrote %d channels, %d programmes to %s (%s, %s)\n",
		res.Stats.Channels, res.Stats.Programmes, res.OutputPath, res.OutputHash,
		res.Duration.Round(time.Millisecond))
	if dropped := res.Stats.DroppedHorizon + res.Stats.DroppedUnowned; dropped > 0 {
		fmt.Fprintf(w, "Dropped %d programmes (%d beyond horizon, %d duplicate source)\n",
			dropped, res.Stats.DroppedHorizon, res.Stats.DroppedUnowned)
	}
	if n := len(res.Report.Unmatched); n > 0 {
		fmt.Fprintf(w, "Unmatched: %d playlist channels (run 'peartv match' for details)\n", n)
	}
}

func tierSummary(byTier map[epg.Tier]int) string {
	if len(byTier) == 0 {
		return ""
	}
	tiers := make([]string, 0, len(byTier))
	for t := range byTier {
		tiers = append(tiers, string(t))
	}
	sort.Strings(tiers)
	parts := make([]string, 0, len(tiers))
	for _, t := range tiers {
		parts = append(parts, fmt.Sprintf("%s %d", t, byTier[epg.Tier(t)]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func printMatchReport(w io.Writer, mapping *epg.Mapping, report *epg.Report) {
	fmt.Fprintf(w, "Playlist channels: %d\n", report.PlaylistChannels)
	fmt.Fprintf(w, "Guide channels:    %d\n", report.GuideChannels)
	fmt.Fprintf(w, "Matched:           %d%s\n", report.Matched, tierSummary(report.ByTier))
	for _, b := range mapping.Bindings() {
		switch b.Tier {
		case epg.TierFuzzy:
			fmt.Fprintf(w, "  %-28s -> %-28s %s %.2f\n", b.OutputID, b.GuideID, b.Tier, b.Score)
		default:
			fmt.Fprintf(w, "  %-28s -> %-28s %s\n", b.OutputID, b.GuideID, b.Tier)
		}
	}
	if len(report.Unmatched) > 0 {
		fmt.Fprintf(w, "Unmatched (%d):\n", len(report.Unmatched))
		for _, u := range report.Unmatched {
			fmt.Fprintf(w, "  %-28s %s\n", u.Channel, u.Reason)
		}
	}
}
