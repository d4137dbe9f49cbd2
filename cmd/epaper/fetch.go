// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/epaper/internal/catalog"
	"github.com/pdiddy/epaper/internal/fault"
	"github.com/pdiddy/epaper/internal/resolve"
	"github.com/pdiddy/epaper/internal/run"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [YYYYMMDD]",
	Short: "Download one dated issue and merge it into a PDF",
	Long: `Fetch resolves the e-paper issue for the given date (today when omitted),
downloads pages a1.jpg, a2.jpg, ... until the first missing page, merges them
into one PDF and copies it to the archive directory. The archived path is
printed on stdout; progress and logs go to stderr.

Exit codes: 2 invalid date, 3 no such issue, 4 fetch error, 5 identifier not
found, 6 empty issue, 7 merge error, 8 persist error, 130 interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.String("base-url", defaultBaseURL, "e-paper site root")
	f.String("publication", run.DefaultPublication, "archived file name prefix")
	f.String("user-agent", "", "User-Agent header (default: desktop browser)")
	f.Duration("index-timeout", defaultIndexTimeout, "timeout of the issue index request")
	f.Duration("page-timeout", defaultPageTimeout, "timeout of each page request")
	f.Int("max-pages", 0, "highest page number to probe (default 48)")
	f.Duration("probe-delay", 0, "minimum spacing between page requests")
	f.String("scratch-dir", "", "directory for per-run working files (default $XDG_CACHE_HOME/epaper)")
	f.String("final-dir", "", "archive directory (default $XDG_DATA_HOME/epaper/issues)")
	f.String("catalog", "", "catalog database (default $XDG_DATA_HOME/epaper/catalog.db)")
	f.Bool("no-catalog", false, "do not record the issue in the catalog")
	f.BoolP("verbose", "v", false, "show debug logs")
	f.BoolP("quiet", "q", false, "show only the result and errors")

	bindFlags(fetchCmd, map[string]string{
		keyBaseURL:      "base-url",
		keyPublication:  "publication",
		keyUserAgent:    "user-agent",
		keyIndexTimeout: "index-timeout",
		keyPageTimeout:  "page-timeout",
		keyMaxPages:     "max-pages",
		keyProbeDelay:   "probe-delay",
		keyScratchDir:   "scratch-dir",
		keyFinalDir:     "final-dir",
		keyCatalog:      "catalog",
	})

	rootCmd.AddCommand(fetchCmd)
}

// bindFlags binds each config key to the named flag. A flag only overrides
// the config file and environment when it is set explicitly.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	date := time.Now().Format(resolve.DateLayout)
	if len(args) == 1 {
		date = args[0]
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noCatalog, _ := cmd.Flags().GetBool("no-catalog")

	cfg := loadFetchConfig()
	if noCatalog {
		cfg.CatalogPath = ""
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := []run.Option{run.WithLogLevel(level)}

	if cfg.CatalogPath != "" {
		store, err := catalog.Open(cfg.CatalogPath)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: catalog unavailable: %v\n", err)
		} else {
			defer store.Close()
			opts = append(opts, run.WithRecorder(store))
		}
	}

	// Requests are bounded per request through their contexts.
	client := &http.Client{}
	res := fetchIssue(ctx, run.New(client, cfg, opts...), date, cmd.ErrOrStderr(), quiet)

	if !res.OK() {
		if res.IsCanceled() {
			fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted; scratch files removed.")
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", res.Kind, res.Reason())
		}
		return &exitError{code: fault.ExitCode(res.Kind), err: res.Err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Issue.PDFPath)
	return nil
}

// fetchIssue runs the download and renders its events concurrently, and
// returns once both are done.
func fetchIssue(ctx context.Context, runner *run.Runner, date string, w io.Writer, quiet bool) run.Result {
	events := make(chan run.Event, 64)
	var res run.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		res = runner.Run(gctx, date, func(ev run.Event) { events <- ev })
		return nil
	})
	g.Go(func() error {
		render(w, events, quiet)
		return nil
	})
	_ = g.Wait()
	return res
}

// render writes events to w until the channel is closed. Progress is shown
// only when it changes.
func render(w io.Writer, events <-chan run.Event, quiet bool) {
	last := -1
	for ev := range events {
		switch ev.Kind {
		case run.EventLog:
			if quiet && ev.Level < slog.LevelError {
				continue
			}
			fmt.Fprintln(w, run.FormatLog(ev))
		case run.EventStatus:
			if !quiet {
				fmt.Fprintf(w, "  %s\n", ev.Message)
			}
		case run.EventProgress:
			if !quiet && ev.Percent != last {
				fmt.Fprintf(w, "  progress %3d%%\n", ev.Percent)
				last = ev.Percent
			}
		}
	}
}
