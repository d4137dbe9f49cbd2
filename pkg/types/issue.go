// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the e-paper fetcher:
// run configuration and the record of a downloaded issue.
package types

import "time"

// Page is one downloaded page image of an issue.
type Page struct {
	// Number is the 1-based page number used in the asset URL.
	Number int `json:"number" yaml:"number"`

	// URL is the image URL the page was downloaded from.
	URL string `json:"url" yaml:"url"`

	// Path is the scratch file holding the image. It is empty in persisted
	// records because the scratch directory does not outlive the run.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Bytes is the size of the downloaded image.
	Bytes int64 `json:"bytes" yaml:"bytes"`
}

// Issue is the record of one completed run: the dated edition, the
// identifier it resolved to, and the pages that were merged, in order.
type Issue struct {
	// Date is the requested date in YYYYMMDD form.
	Date string `json:"date" yaml:"date"`

	// EpaperDate is the date as it appears in the site's URLs (DD-MM-YYYY).
	EpaperDate string `json:"epaper_date" yaml:"epaper_date"`

	// Identifier is the numeric issue token extracted from the index page.
	Identifier string `json:"identifier" yaml:"identifier"`

	// IndexURL is the index page the identifier was resolved from.
	IndexURL string `json:"index_url" yaml:"index_url"`

	// Pages lists the merged pages in document order.
	Pages []Page `json:"pages" yaml:"pages"`

	// PDFPath is the archived PDF.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`

	// ManifestPath is the YAML manifest written next to the PDF.
	ManifestPath string `json:"manifest_path,omitempty" yaml:"manifest_path,omitempty"`

	// RunID identifies the run that produced the issue.
	RunID string `json:"run_id" yaml:"run_id"`

	// FetchedAt is when the run completed.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// PageCount returns the number of pages in the issue.
func (i Issue) PageCount() int {
	return len(i.Pages)
}
