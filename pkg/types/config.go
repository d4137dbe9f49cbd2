package types

import "time"

// HTTPConfig holds shared HTTP settings used by every request the fetcher makes.
type HTTPConfig struct {
	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests. The e-paper
	// site rejects obvious bots, so the default mimics a desktop browser.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// FetchConfig holds everything one run needs. It is passed explicitly to the
// resolver, fetcher and runner constructors.
type FetchConfig struct {
	// BaseURL is the publication's site root (e.g. "https://dailytimes.com.pk").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Publication is the file name prefix of the archived PDF
	// (e.g. "DailyTimes" gives "DailyTimes_20260111.pdf").
	Publication string `json:"publication" yaml:"publication"`

	// UserAgent is sent with both the index and page requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// IndexTimeout bounds the issue index request (default 20s).
	IndexTimeout time.Duration `json:"index_timeout" yaml:"index_timeout"`

	// PageTimeout bounds each page image request (default 30s).
	PageTimeout time.Duration `json:"page_timeout" yaml:"page_timeout"`

	// MaxPages is the upper bound of the page probe (default 48).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// ProbeDelay is the minimum spacing between consecutive page requests.
	// Zero sends the next request as soon as the previous one completes.
	ProbeDelay time.Duration `json:"probe_delay" yaml:"probe_delay"`

	// ScratchDir holds per-run working directories. Each run creates and
	// removes its own subdirectory.
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir"`

	// FinalDir receives the merged PDF and its manifest.
	FinalDir string `json:"final_dir" yaml:"final_dir"`

	// CatalogPath is the SQLite catalog of completed issues. Empty disables it.
	CatalogPath string `json:"catalog_path,omitempty" yaml:"catalog_path,omitempty"`
}

// Index returns the HTTP settings for the issue index request.
func (c FetchConfig) Index() HTTPConfig {
	return HTTPConfig{Timeout: c.IndexTimeout, UserAgent: c.UserAgent}
}

// Page returns the HTTP settings for page image requests.
func (c FetchConfig) Page() HTTPConfig {
	return HTTPConfig{Timeout: c.PageTimeout, UserAgent: c.UserAgent}
}
