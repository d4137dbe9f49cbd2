// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve turns an issue date into the numeric identifier the site
// uses for that issue's page images.
package resolve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pdiddy/epaper/internal/fault"
	"github.com/pdiddy/epaper/internal/httputil"
	"github.com/pdiddy/epaper/pkg/types"
)

// maxIndexBytes bounds how much of the index page is parsed.
const maxIndexBytes = 8 << 20

// shortlinkParam extracts the post ID from a WordPress shortlink such as
// "https://dailytimes.com.pk/?p=1234567".
var shortlinkParam = regexp.MustCompile(`[?&]p=(\d+)`)

// Resolver fetches an issue's index page and extracts its identifier.
type Resolver struct {
	client *http.Client
	cfg    types.FetchConfig
}

// NewResolver returns a Resolver that issues requests through client.
func NewResolver(client *http.Client, cfg types.FetchConfig) *Resolver {
	return &Resolver{client: client, cfg: cfg}
}

// IndexURL returns the index page URL for date.
func (r *Resolver) IndexURL(date time.Time) string {
	return fmt.Sprintf("%s/epaper/%s/", strings.TrimRight(r.cfg.BaseURL, "/"), EpaperDate(date))
}

// Resolve fetches the index page for date and returns the issue identifier.
// A 404 means no edition was published that day and yields ErrNoSuchIssue;
// other failures yield ErrFetch or ErrIdentifierNotFound.
func (r *Resolver) Resolve(ctx context.Context, date time.Time) (string, error) {
	indexURL := r.IndexURL(date)

	hc := r.cfg.Index()
	if hc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hc.Timeout)
		defer cancel()
	}

	resp, err := httputil.Get(ctx, r.client, indexURL, hc.UserAgent)
	if err != nil {
		return "", fmt.Errorf("%w: index %s: %w", fault.ErrFetch, indexURL, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		httputil.Discard(resp)
		return "", fmt.Errorf("%w: %s", fault.ErrNoSuchIssue, EpaperDate(date))
	}
	if !httputil.IsSuccess(resp.StatusCode) {
		httputil.Discard(resp)
		return "", fmt.Errorf("%w: index %s returned HTTP %d", fault.ErrFetch, indexURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexBytes))
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("%w: reading index %s: %w", fault.ErrFetch, indexURL, err)
	}
	return ExtractIdentifier(bytes.NewReader(body))
}

// ExtractIdentifier parses index page markup and returns the numeric "p"
// parameter of its <link rel="shortlink"> element.
func ExtractIdentifier(body io.Reader) (string, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return "", fmt.Errorf("%w: parsing index page: %v", fault.ErrIdentifierNotFound, err)
	}

	href, ok := findShortlink(doc)
	if !ok {
		return "", fmt.Errorf("%w: index page has no shortlink", fault.ErrIdentifierNotFound)
	}

	m := shortlinkParam.FindStringSubmatch(href)
	if m == nil {
		return "", fmt.Errorf("%w: shortlink %q has no p parameter", fault.ErrIdentifierNotFound, href)
	}
	return m[1], nil
}

// findShortlink walks the document in order and returns the href of the
// first <link> whose rel contains "shortlink" and whose href is non-empty.
func findShortlink(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "link" {
		var rel, href string
		for _, a := range n.Attr {
			switch strings.ToLower(a.Key) {
			case "rel":
				rel = a.Val
			case "href":
				href = strings.TrimSpace(a.Val)
			}
		}
		if href != "" && hasToken(rel, "shortlink") {
			return href, true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href, ok := findShortlink(c); ok {
			return href, true
		}
	}
	return "", false
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}
