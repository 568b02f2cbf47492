// Package probe checks configured sources for reachability and reports what
// each one serves, without running the pipeline.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a-curious-pear/peartv/internal/config"
	"github.com/a-curious-pear/peartv/internal/fetch"
	"github.com/a-curious-pear/peartv/internal/httpclient"
	"github.com/a-curious-pear/peartv/internal/safeurl"
)

// Result is the outcome of probing one source.
type Result struct {
	URL           string `json:"url"`
	Kind          string `json:"kind"` // "playlist" or "guide"
	Status        Status `json:"status"`
	StatusCode    int    `json:"status_code,omitempty"`
	LatencyMs     int64  `json:"latency_ms"`
	Compression   string `json:"compression,omitempty"`
	ContentLength int64  `json:"content_length,omitempty"`
	Error         string `json:"error,omitempty"`
}

type Status string

const (
	StatusOK        Status = "ok"
	StatusBadStatus Status = "bad_status"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

type source struct{ url, kind string }

// All probes the playlist and every guide source concurrently. Results come
// back in configuration order: playlist first, then guides.
func All(ctx context.Context, cfg *config.Config, client *http.Client) []Result {
	if client == nil {
		client = httpclient.WithTimeout(15 * time.Second)
	}
	sources := make([]source, 0, 1+len(cfg.GuideURLs))
	sources = append(sources, source{cfg.PlaylistURL, "playlist"})
	for _, u := range cfg.GuideURLs {
		sources = append(sources, source{u, "guide"})
	}

	out := make([]Result, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			out[i] = One(ctx, src.url, src.kind, client)
			return nil
		})
	}
	g.Wait()
	return out
}

// One probes a single source and classifies the outcome.
func One(ctx context.Context, src, kind string, client *http.Client) Result {
	res := Result{URL: src, Kind: kind}
	start := time.Now()
	defer func() { res.LatencyMs = time.Since(start).Milliseconds() }()

	if safeurl.IsLocal(src) {
		return probeFile(src, res)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := client.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline") {
			res.Status = StatusTimeout
		} else {
			res.Status = StatusError
		}
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.ContentLength = resp.ContentLength
	if resp.StatusCode != http.StatusOK {
		res.Status = StatusBadStatus
		return res
	}

	head := make([]byte, 512)
	n, _ := resp.Body.Read(head)
	res.Compression = fetch.DetectCompression(head[:n])
	res.Status = StatusOK
	return res
}

func probeFile(path string, res Result) Result {
	fi, err := os.Stat(path)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}
	f, err := os.Open(path)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := f.Read(head)
	res.ContentLength = fi.Size()
	res.Compression = fetch.DetectCompression(head[:n])
	res.Status = StatusOK
	return res
}

// Format renders results as console lines, one per source.
func Format(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		status := string(r.Status)
		if r.StatusCode != 0 && r.Status != StatusOK {
			status = fmt.Sprintf("%s(%d)", r.Status, r.StatusCode)
		}
		fmt.Fprintf(&b, "%-8s %-14s %6dms", r.Kind, status, r.LatencyMs)
		if r.Compression != "" {
			fmt.Fprintf(&b, " %-6s", r.Compression)
		}
		if r.ContentLength > 0 {
			fmt.Fprintf(&b, " %9d bytes", r.ContentLength)
		}
		fmt.Fprintf(&b, "  %s", r.URL)
		if r.Error != "" {
			fmt.Fprintf(&b, "  (%s)", r.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
