// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/epaper/internal/fault"
	"github.com/pdiddy/epaper/pkg/types"
)

const (
	testDate       = "20260111"
	testEpaperPath = "/epaper/11-01-2026/"
	testIdentifier = "4242"
)

const indexHTML = `<!DOCTYPE html><html><head>
<link rel="shortlink" href="https://example.test/?p=4242">
</head><body>e-paper</body></html>`

// site is a fake e-paper site. pages[n] is the body served for page n;
// page numbers without an entry answer 404.
type site struct {
	mu       sync.Mutex
	index    int
	pages    map[int][]byte
	failPage int
	calls    atomic.Int32
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	if r.URL.Path == testEpaperPath {
		if s.index != 0 {
			w.WriteHeader(s.index)
			return
		}
		fmt.Fprint(w, indexHTML)
		return
	}
	var n int
	if _, err := fmt.Sscanf(r.URL.Path, "/assets/uploads/epaper/"+testIdentifier+"/a%d.jpg", &n); err != nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	body, ok := s.pages[n]
	s.mu.Unlock()
	if n == s.failPage {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(body)
}

func pagePNG(t *testing.T, n int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30+n, 40))
	c := color.RGBA{R: uint8(n * 40), G: 80, B: 160, A: 255}
	for y := 0; y < 40; y++ {
		for x := 0; x < 30+n; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newSite(t *testing.T, count int) (*site, *httptest.Server) {
	t.Helper()
	s := &site{pages: map[int][]byte{}}
	for n := 1; n <= count; n++ {
		s.pages[n] = pagePNG(t, n)
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func testConfig(t *testing.T, baseURL string) types.FetchConfig {
	t.Helper()
	root := t.TempDir()
	return types.FetchConfig{
		BaseURL:      baseURL,
		UserAgent:    "epaper-test",
		IndexTimeout: 5 * time.Second,
		PageTimeout:  5 * time.Second,
		MaxPages:     10,
		ScratchDir:   filepath.Join(root, "scratch"),
		FinalDir:     filepath.Join(root, "issues"),
	}
}

// collect runs the download and returns the result and every event.
func collect(t *testing.T, r *Runner, ctx context.Context, date string) (Result, []Event) {
	t.Helper()
	var events []Event
	res := r.Run(ctx, date, func(ev Event) { events = append(events, ev) })
	return res, events
}

func progressValues(events []Event) []int {
	var out []int
	for _, ev := range events {
		if ev.Kind == EventProgress {
			out = append(out, ev.Percent)
		}
	}
	return out
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type recorderFunc func(context.Context, types.Issue) error

func (f recorderFunc) Record(ctx context.Context, issue types.Issue) error { return f(ctx, issue) }

func TestRunCompletesIssue(t *testing.T) {
	_, srv := newSite(t, 5)
	cfg := testConfig(t, srv.URL)

	var recorded []types.Issue
	rec := recorderFunc(func(_ context.Context, issue types.Issue) error {
		recorded = append(recorded, issue)
		return nil
	})
	fixed := time.Date(2026, 1, 11, 7, 30, 0, 0, time.UTC)
	r := New(srv.Client(), cfg, WithRecorder(rec), WithClock(func() time.Time { return fixed }))

	res, events := collect(t, r, context.Background(), testDate)
	require.True(t, res.OK(), "run failed: %v", res.Err)
	assert.Equal(t, Completed, res.State)
	assert.Empty(t, res.Reason())

	issue := res.Issue
	assert.Equal(t, testDate, issue.Date)
	assert.Equal(t, "11-01-2026", issue.EpaperDate)
	assert.Equal(t, testIdentifier, issue.Identifier)
	assert.Equal(t, srv.URL+testEpaperPath, issue.IndexURL)
	assert.Equal(t, fixed, issue.FetchedAt)
	require.Len(t, issue.Pages, 5)
	for i, p := range issue.Pages {
		assert.Equal(t, i+1, p.Number)
		assert.Empty(t, p.Path)
		assert.Positive(t, p.Bytes)
	}

	want := filepath.Join(cfg.FinalDir, "DailyTimes_20260111.pdf")
	assert.Equal(t, want, issue.PDFPath)
	pdf, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	manifest, err := ReadManifest(issue.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, issue.Identifier, manifest.Identifier)
	assert.Equal(t, 5, manifest.PageCount())
	assert.Equal(t, issue.RunID, manifest.RunID)

	require.Len(t, recorded, 1)
	assert.Equal(t, issue.PDFPath, recorded[0].PDFPath)

	assert.Empty(t, dirEntries(t, cfg.ScratchDir), "scratch directory must be removed")
	assert.ElementsMatch(t, []string{"DailyTimes_20260111.pdf", "DailyTimes_20260111.yaml"}, dirEntries(t, cfg.FinalDir))

	progress := progressValues(events)
	require.NotEmpty(t, progress)
	assert.Equal(t, ProgressStarted, progress[0])
	assert.Equal(t, ProgressCompleted, progress[len(progress)-1])
	assert.Contains(t, progress, ProgressMerging)
	assert.IsNonDecreasing(t, progress)

	last := events[len(events)-1]
	require.Equal(t, EventFinished, last.Kind)
	require.NotNil(t, last.Result)
	assert.True(t, last.Result.OK())
	for _, ev := range events[:len(events)-1] {
		assert.NotEqual(t, EventFinished, ev.Kind)
	}
}

func TestRunInvalidDateMakesNoRequests(t *testing.T) {
	s, srv := newSite(t, 3)
	cfg := testConfig(t, srv.URL)
	r := New(srv.Client(), cfg)

	for _, date := range []string{"", "2026011", "2026-01-11", "20260231", "abcdefgh"} {
		t.Run(date, func(t *testing.T) {
			res, events := collect(t, r, context.Background(), date)
			assert.Equal(t, Failed, res.State)
			assert.Equal(t, Idle, res.FailedIn)
			assert.Equal(t, fault.KindInvalidDate, res.Kind)
			assert.NotEmpty(t, res.Reason())
			assert.Equal(t, EventFinished, events[len(events)-1].Kind)
			assert.Empty(t, progressValues(events))
		})
	}
	assert.Zero(t, s.calls.Load())
	assert.NoDirExists(t, cfg.ScratchDir)
	assert.NoDirExists(t, cfg.FinalDir)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, s *site)
		kind     fault.Kind
		failedIn State
	}{
		{
			name:     "no such issue",
			setup:    func(_ *testing.T, s *site) { s.index = http.StatusNotFound },
			kind:     fault.KindNoSuchIssue,
			failedIn: ResolvingIdentifier,
		},
		{
			name:     "index server error",
			setup:    func(_ *testing.T, s *site) { s.index = http.StatusBadGateway },
			kind:     fault.KindFetch,
			failedIn: ResolvingIdentifier,
		},
		{
			name:     "first page missing",
			setup:    func(_ *testing.T, s *site) { s.pages = map[int][]byte{} },
			kind:     fault.KindEmptyIssue,
			failedIn: ProbingPages,
		},
		{
			name:     "first page fails",
			setup:    func(_ *testing.T, s *site) { s.failPage = 1 },
			kind:     fault.KindEmptyIssue,
			failedIn: ProbingPages,
		},
		{
			name:     "undecodable page",
			setup:    func(_ *testing.T, s *site) { s.pages[2] = []byte("not an image") },
			kind:     fault.KindMerge,
			failedIn: Merging,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, srv := newSite(t, 3)
			tt.setup(t, s)
			cfg := testConfig(t, srv.URL)
			r := New(srv.Client(), cfg)

			res, events := collect(t, r, context.Background(), testDate)
			assert.Equal(t, Failed, res.State)
			assert.Equal(t, tt.failedIn, res.FailedIn)
			assert.Equal(t, tt.kind, res.Kind, "err: %v", res.Err)
			assert.NotEmpty(t, res.Reason())
			assert.LessOrEqual(t, len([]rune(res.Reason())), 100)
			assert.Empty(t, res.Issue.PDFPath)

			assert.Empty(t, dirEntries(t, cfg.ScratchDir), "scratch directory must be removed")
			assert.Empty(t, dirEntries(t, cfg.FinalDir), "no document may be produced")
			assert.NotContains(t, progressValues(events), ProgressCompleted)

			last := events[len(events)-1]
			require.Equal(t, EventFinished, last.Kind)
			assert.Equal(t, tt.kind, last.Result.Kind)
		})
	}
}

func TestRunKeepsPagesBeforeFailure(t *testing.T) {
	s, srv := newSite(t, 6)
	s.failPage = 3
	cfg := testConfig(t, srv.URL)

	res, _ := collect(t, New(srv.Client(), cfg), context.Background(), testDate)
	require.True(t, res.OK(), "run failed: %v", res.Err)
	assert.Equal(t, 2, res.Issue.PageCount())
	assert.FileExists(t, res.Issue.PDFPath)
}

func TestRunPersistFailure(t *testing.T) {
	_, srv := newSite(t, 2)
	cfg := testConfig(t, srv.URL)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.FinalDir), 0o755))
	require.NoError(t, os.WriteFile(cfg.FinalDir, []byte("a file, not a directory"), 0o644))

	res, _ := collect(t, New(srv.Client(), cfg), context.Background(), testDate)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, Persisting, res.FailedIn)
	assert.Equal(t, fault.KindPersist, res.Kind)
	assert.Empty(t, dirEntries(t, cfg.ScratchDir))
}

func TestRunRecorderFailureIsNotFatal(t *testing.T) {
	_, srv := newSite(t, 2)
	cfg := testConfig(t, srv.URL)
	rec := recorderFunc(func(context.Context, types.Issue) error { return errors.New("database is locked") })

	res, events := collect(t, New(srv.Client(), cfg, WithRecorder(rec)), context.Background(), testDate)
	require.True(t, res.OK(), "run failed: %v", res.Err)

	var warned bool
	for _, ev := range events {
		if ev.Kind == EventLog && ev.Message == "recording issue in catalog" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunCancelled(t *testing.T) {
	_, srv := newSite(t, 3)
	cfg := testConfig(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, _ := collect(t, New(srv.Client(), cfg), ctx, testDate)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, fault.KindCanceled, res.Kind)
	assert.True(t, res.IsCanceled())
	assert.Empty(t, dirEntries(t, cfg.ScratchDir))
	assert.NoFileExists(t, filepath.Join(cfg.FinalDir, "DailyTimes_20260111.pdf"))
}

func TestRunIsRepeatable(t *testing.T) {
	_, srv := newSite(t, 4)
	cfg := testConfig(t, srv.URL)
	r := New(srv.Client(), cfg)

	first, _ := collect(t, r, context.Background(), testDate)
	require.True(t, first.OK(), "first run failed: %v", first.Err)
	second, _ := collect(t, r, context.Background(), testDate)
	require.True(t, second.OK(), "second run failed: %v", second.Err)

	assert.NotEqual(t, first.Issue.RunID, second.Issue.RunID)
	assert.Equal(t, first.Issue.PDFPath, second.Issue.PDFPath)
	assert.Equal(t, first.Issue.Pages, second.Issue.Pages)
	assert.Len(t, dirEntries(t, cfg.FinalDir), 2)
}

func TestRunUsesPublicationPrefix(t *testing.T) {
	_, srv := newSite(t, 1)
	cfg := testConfig(t, srv.URL)
	cfg.Publication = "Gazette"

	res, _ := collect(t, New(srv.Client(), cfg), context.Background(), testDate)
	require.True(t, res.OK(), "run failed: %v", res.Err)
	assert.Equal(t, filepath.Join(cfg.FinalDir, "Gazette_20260111.pdf"), res.Issue.PDFPath)
}

func TestStartClosesAfterFinished(t *testing.T) {
	_, srv := newSite(t, 2)
	cfg := testConfig(t, srv.URL)

	var events []Event
	for ev := range New(srv.Client(), cfg).Start(context.Background(), testDate) {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, EventFinished, last.Kind)
	assert.True(t, last.Result.OK(), "run failed: %v", last.Result.Err)
}

func TestStartAbandonedChannelStillCleansUp(t *testing.T) {
	_, srv := newSite(t, 30)
	cfg := testConfig(t, srv.URL)
	cfg.MaxPages = 40
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := New(srv.Client(), cfg).Start(ctx, testDate)

	// Nobody reads: the run fills the buffer and waits with its scratch
	// directory in place.
	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(cfg.ScratchDir)
		return len(ch) == cap(ch) && len(entries) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(cfg.ScratchDir)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 10*time.Millisecond)

	drained := make(chan struct{})
	go func() {
		for range ch {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("event channel was not closed")
	}
}

func TestRunLogLevel(t *testing.T) {
	_, srv := newSite(t, 1)
	cfg := testConfig(t, srv.URL)

	count := func(level slog.Level) (debug int) {
		_, events := collect(t, New(srv.Client(), cfg, WithLogLevel(level)), context.Background(), testDate)
		for _, ev := range events {
			if ev.Kind == EventLog && ev.Level == slog.LevelDebug {
				debug++
			}
		}
		return debug
	}
	assert.Zero(t, count(slog.LevelInfo))
	assert.Positive(t, count(slog.LevelDebug))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "probing", ProbingPages.String())
	assert.True(t, Completed.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, Merging.Terminal())
}
