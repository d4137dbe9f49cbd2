// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads the page images of an issue by probing
// sequentially numbered asset URLs until the first page that is missing
// or fails.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/epaper/internal/fault"
	"github.com/pdiddy/epaper/internal/httputil"
	"github.com/pdiddy/epaper/pkg/types"
)

// DefaultMaxPages bounds the probe when the configuration leaves it unset.
const DefaultMaxPages = 48

// Outcome is the result of probing one page number.
type Outcome int

const (
	// PageFound means the image was downloaded to disk.
	PageFound Outcome = iota
	// PageMissing means the site answered 404: the issue has no such page.
	PageMissing
	// PageFailed means the request or the write failed.
	PageFailed
)

func (o Outcome) String() string {
	switch o {
	case PageFound:
		return "found"
	case PageMissing:
		return "missing"
	case PageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProbeResult describes one probe. Page is set only for PageFound and Err
// only for PageFailed.
type ProbeResult struct {
	Number  int
	URL     string
	Outcome Outcome
	Page    types.Page
	Err     error
}

// ProbeFunc is called after every probe, in page order.
type ProbeFunc func(ProbeResult)

// Fetcher downloads page images one at a time.
type Fetcher struct {
	client *http.Client
	cfg    types.FetchConfig
	pacer  *rate.Limiter
}

// NewFetcher returns a Fetcher that issues requests through client.
func NewFetcher(client *http.Client, cfg types.FetchConfig) *Fetcher {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	return &Fetcher{
		client: client,
		cfg:    cfg,
		pacer:  httputil.NewPacer(cfg.ProbeDelay),
	}
}

// MaxPages returns the probe bound in effect.
func (f *Fetcher) MaxPages() int {
	return f.cfg.MaxPages
}

// PageURL returns the image URL of page n of the issue identified by id.
func (f *Fetcher) PageURL(id string, n int) string {
	return fmt.Sprintf("%s/assets/uploads/epaper/%s/a%d.jpg", strings.TrimRight(f.cfg.BaseURL, "/"), id, n)
}

// PageFile returns the scratch file name for page n.
func PageFile(n int) string {
	return fmt.Sprintf("page_%02d.jpg", n)
}

// Collect probes pages 1..MaxPages of issue id, writing each image into dir,
// and returns the downloaded pages in page order. Probing stops at the first
// page that is missing or fails; later page numbers are never requested.
// If no page was downloaded Collect returns ErrEmptyIssue.
func (f *Fetcher) Collect(ctx context.Context, id, dir string, onProbe ProbeFunc) ([]types.Page, error) {
	var pages []types.Page
	var stop ProbeResult

	for n := 1; n <= f.cfg.MaxPages; n++ {
		if err := f.pacer.Wait(ctx); err != nil {
			return pages, err
		}

		res := f.Probe(ctx, id, n, dir)
		if onProbe != nil {
			onProbe(res)
		}
		if res.Outcome != PageFound {
			stop = res
			break
		}
		pages = append(pages, res.Page)
	}

	if err := ctx.Err(); err != nil {
		return pages, err
	}

	if len(pages) == 0 {
		if stop.Outcome == PageFailed {
			return nil, fmt.Errorf("%w: page 1: %w", fault.ErrEmptyIssue, stop.Err)
		}
		return nil, fmt.Errorf("%w: page 1 of issue %s does not exist", fault.ErrEmptyIssue, id)
	}
	return pages, nil
}

// Probe downloads page n of issue id into dir. A 404 is reported as
// PageMissing. On any failure nothing is left behind in dir for page n.
func (f *Fetcher) Probe(ctx context.Context, id string, n int, dir string) ProbeResult {
	pageURL := f.PageURL(id, n)
	res := ProbeResult{Number: n, URL: pageURL}
	destPath := filepath.Join(dir, PageFile(n))

	size, err := f.download(ctx, pageURL, destPath)
	switch {
	case errors.Is(err, errNotFound):
		res.Outcome = PageMissing
	case err != nil:
		os.Remove(destPath)
		res.Outcome = PageFailed
		res.Err = err
	default:
		res.Outcome = PageFound
		res.Page = types.Page{Number: n, URL: pageURL, Path: destPath, Bytes: size}
	}
	return res
}

var errNotFound = errors.New("not found")

// download fetches url to destPath through a temporary file in the same
// directory, renaming it into place only after the body was fully written.
func (f *Fetcher) download(ctx context.Context, url, destPath string) (int64, error) {
	hc := f.cfg.Page()
	if hc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hc.Timeout)
		defer cancel()
	}

	resp, err := httputil.Get(ctx, f.client, url, hc.UserAgent)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", fault.ErrFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, errNotFound
	}
	if !httputil.IsSuccess(resp.StatusCode) {
		return 0, fmt.Errorf("%w: HTTP %d from %s", fault.ErrFetch, resp.StatusCode, url)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".page-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temp file: %w", fault.ErrFetch, err)
	}
	tmpPath := tmpFile.Name()

	n, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: writing %s: %w", fault.ErrFetch, filepath.Base(destPath), copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: closing temp file: %w", fault.ErrFetch, closeErr)
	}
	if n == 0 {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: empty body from %s", fault.ErrFetch, url)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: renaming temp file: %w", fault.ErrFetch, err)
	}
	return n, nil
}
