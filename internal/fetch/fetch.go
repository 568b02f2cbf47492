// Package fetch acquires playlist and guide documents and spools them to disk.
//
// Design goals:
//   - Conditional GET (ETag/If-Modified-Since) on every request; 304 reuses the spool file
//   - Bounded retries with a fixed delay at the I/O boundary, never inside parsing
//   - Transparent decompression (gzip, bzip2, xz, brotli) while spooling
//   - A shared rate limiter so multiple guide sources don't hammer one host
//   - Crash-safe: spool and state files are written to a temp path and renamed
//
// The spool file always holds the decompressed bytes, so the two streaming
// guide passes read plain markup regardless of what the provider served.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/a-curious-pear/peartv/internal/httpclient"
	"github.com/a-curious-pear/peartv/internal/metrics"
	"github.com/a-curious-pear/peartv/internal/safeurl"
)

// Options tunes a Fetcher. Zero values fall back to sane defaults.
type Options struct {
	CacheDir string
	Client   *http.Client
	Rate     float64 // requests per second across all sources; 0 = 2/s
	Retries  int     // attempts per source; 0 = 3
	Delay    time.Duration
}

// Result describes one spooled source document.
type Result struct {
	Path        string // decompressed spool file
	Hash        string // short sha256 of the decompressed bytes
	Compression string // "gzip", "bzip2", "xz", "brotli", or "none"
	NotModified bool   // server answered 304 and the prior spool was reused
	Size        int64
}

type Fetcher struct {
	cacheDir string
	client   *http.Client
	limiter  *rate.Limiter
	retries  uint
	delay    time.Duration
}

func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = httpclient.Default()
	}
	rps := opts.Rate
	if rps <= 0 {
		rps = 2
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 3
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Fetcher{
		cacheDir: opts.CacheDir,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		retries:  uint(retries),
		delay:    delay,
	}
}

// Fetch acquires one source (http(s) URL or local path) and returns the
// spooled, decompressed copy. Network errors and 5xx responses are retried;
// 4xx responses and decompression failures are not.
func (f *Fetcher) Fetch(ctx context.Context, src string) (*Result, error) {
	if safeurl.IsLocal(src) {
		return f.spoolLocal(src)
	}
	if !safeurl.IsHTTPOrHTTPS(src) {
		return nil, fmt.Errorf("fetch %s: unsupported scheme", src)
	}
	return f.fetchHTTP(ctx, src)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src string) (*Result, error) {
	key := SourceKey(src)
	statePath := f.statePath(key)
	state := LoadState(statePath, key)

	res, err := retry.DoWithData(
		func() (*Result, error) {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, retry.Unrecoverable(err)
			}
			return f.attempt(ctx, src, key, state)
		},
		retry.Attempts(f.retries),
		retry.Delay(f.delay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(_ uint, err error) {
			metrics.FetchRetries.Inc()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	return res, nil
}

// attempt performs a single conditional GET. On 200 the body is decompressed
// and spooled; on 304 the prior spool file is reused when it still exists.
func (f *Fetcher) attempt(ctx context.Context, src, key string, state *SourceState) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	spool := f.spoolPath(key)
	if _, statErr := os.Stat(spool); statErr == nil {
		if state.ETag != "" {
			req.Header.Set("If-None-Match", state.ETag)
		}
		if state.LastModified != "" {
			req.Header.Set("If-Modified-Since", state.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		fi, statErr := os.Stat(spool)
		if statErr != nil {
			// Spool vanished since the validators were recorded; refetch clean.
			state.ETag, state.LastModified = "", ""
			return nil, fmt.Errorf("304 but spool file missing")
		}
		return &Result{
			Path:        spool,
			Hash:        state.ContentHash,
			Compression: state.Compression,
			NotModified: true,
			Size:        fi.Size(),
		}, nil
	case resp.StatusCode != http.StatusOK:
		err := &statusError{code: resp.StatusCode}
		if !isRetryableStatus(resp.StatusCode) {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}

	body, compression, err := Decompress(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("decompress: %w", err))
	}
	size, sum, err := f.spool(spool, body)
	if err != nil {
		// A short read mid-body is a transport failure, worth another attempt.
		return nil, err
	}

	state.ETag = resp.Header.Get("ETag")
	state.LastModified = resp.Header.Get("Last-Modified")
	state.ContentHash = sum
	state.Compression = compression
	state.FetchedAt = time.Now().UTC()
	state.Size = size
	if err := state.Save(f.statePath(key)); err != nil {
		// State is advisory; a save failure only costs the next conditional GET.
		metrics.StateSaveFailures.Inc()
	}

	return &Result{Path: spool, Hash: sum, Compression: compression, Size: size}, nil
}

// spoolLocal copies a local file through the decompression sniffer so callers
// see the same plain-markup contract as for remote sources.
func (f *Fetcher) spoolLocal(src string) (*Result, error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	defer in.Close()

	body, compression, err := Decompress(in, "")
	if err != nil {
		return nil, fmt.Errorf("fetch %s: decompress: %w", src, err)
	}
	spool := f.spoolPath(SourceKey(src))
	size, sum, err := f.spool(spool, body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	return &Result{Path: spool, Hash: sum, Compression: compression, Size: size}, nil
}

// spool streams body into the spool file via a temp path, hashing as it goes.
func (f *Fetcher) spool(dest string, body io.Reader) (int64, string, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", err
	}
	tmp, err := os.CreateTemp(dir, ".spool-*")
	if err != nil {
		return 0, "", err
	}
	name := tmp.Name()
	h := sha256.New()
	size, werr := io.Copy(io.MultiWriter(tmp, h), body)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(name)
		if werr != nil {
			return 0, "", fmt.Errorf("spool: %w", werr)
		}
		return 0, "", fmt.Errorf("spool: %w", cerr)
	}
	if err := os.Rename(name, dest); err != nil {
		os.Remove(name)
		return 0, "", fmt.Errorf("spool: %w", err)
	}
	return size, hexSum(h), nil
}

func (f *Fetcher) spoolPath(key string) string {
	return filepath.Join(f.cacheDir, "spool", key+".body")
}

func (f *Fetcher) statePath(key string) string {
	return filepath.Join(f.cacheDir, "spool", key+".state.json")
}

// SourceKey computes a stable short key for a source string. Credentials that
// may be embedded in the URL never reach the filesystem in clear text.
func SourceKey(src string) string {
	h := sha256.Sum256([]byte(src))
	return hex.EncodeToString(h[:8])
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil)[:16])
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return isRetryableStatus(se.code)
	}
	// Network-level failures (timeouts, resets) are retryable by default;
	// anything marked Unrecoverable above never reaches this predicate.
	return true
}
