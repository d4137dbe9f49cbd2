package main

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/pdiddy/epaper/internal/fetch"
	"github.com/pdiddy/epaper/internal/httputil"
	"github.com/pdiddy/epaper/internal/run"
	"github.com/pdiddy/epaper/pkg/types"
)

const (
	defaultBaseURL      = "https://dailytimes.com.pk"
	defaultIndexTimeout = 20 * time.Second
	defaultPageTimeout  = 30 * time.Second
)

// Configuration keys shared by the config file, the environment
// (EPAPER_<KEY>) and the command flags.
const (
	keyBaseURL      = "base_url"
	keyPublication  = "publication"
	keyUserAgent    = "user_agent"
	keyIndexTimeout = "index_timeout"
	keyPageTimeout  = "page_timeout"
	keyMaxPages     = "max_pages"
	keyProbeDelay   = "probe_delay"
	keyScratchDir   = "scratch_dir"
	keyFinalDir     = "final_dir"
	keyCatalog      = "catalog_path"
)

// XDG default locations.
func defaultScratchDir() string  { return filepath.Join(xdg.CacheHome, appName) }
func defaultFinalDir() string    { return filepath.Join(xdg.DataHome, appName, "issues") }
func defaultCatalogPath() string { return filepath.Join(xdg.DataHome, appName, "catalog.db") }

func setDefaults() {
	viper.SetDefault(keyBaseURL, defaultBaseURL)
	viper.SetDefault(keyPublication, run.DefaultPublication)
	viper.SetDefault(keyUserAgent, httputil.DefaultUserAgent)
	viper.SetDefault(keyIndexTimeout, defaultIndexTimeout)
	viper.SetDefault(keyPageTimeout, defaultPageTimeout)
	viper.SetDefault(keyMaxPages, fetch.DefaultMaxPages)
	viper.SetDefault(keyProbeDelay, time.Duration(0))
	viper.SetDefault(keyScratchDir, defaultScratchDir())
	viper.SetDefault(keyFinalDir, defaultFinalDir())
	viper.SetDefault(keyCatalog, defaultCatalogPath())
}

// loadFetchConfig assembles the run configuration from viper, which layers
// flags over environment over config file over defaults.
func loadFetchConfig() types.FetchConfig {
	return types.FetchConfig{
		BaseURL:      viper.GetString(keyBaseURL),
		Publication:  viper.GetString(keyPublication),
		UserAgent:    viper.GetString(keyUserAgent),
		IndexTimeout: viper.GetDuration(keyIndexTimeout),
		PageTimeout:  viper.GetDuration(keyPageTimeout),
		MaxPages:     viper.GetInt(keyMaxPages),
		ProbeDelay:   viper.GetDuration(keyProbeDelay),
		ScratchDir:   viper.GetString(keyScratchDir),
		FinalDir:     viper.GetString(keyFinalDir),
		CatalogPath:  viper.GetString(keyCatalog),
	}
}
