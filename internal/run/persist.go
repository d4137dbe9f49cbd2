// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package run

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/epaper/internal/fault"
	"github.com/pdiddy/epaper/pkg/types"
)

// persist copies the merged PDF into the archive, writes the manifest and
// records the issue. Only the PDF copy is fatal; the manifest and the
// catalog are best effort.
func (r *Runner) persist(ctx context.Context, issue *types.Issue, workPDF string, logger *slog.Logger) error {
	if err := os.MkdirAll(r.cfg.FinalDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", fault.ErrPersist, r.cfg.FinalDir, err)
	}
	base := r.baseName(issue.Date)

	target := filepath.Join(r.cfg.FinalDir, base+".pdf")
	if err := copyFile(workPDF, target); err != nil {
		return fmt.Errorf("%w: %w", fault.ErrPersist, err)
	}
	issue.PDFPath = target
	logger.Info("saved PDF", "path", target)

	manifest := filepath.Join(r.cfg.FinalDir, base+".yaml")
	issue.ManifestPath = manifest
	if err := writeManifest(issue, manifest); err != nil {
		issue.ManifestPath = ""
		logger.Warn("writing manifest", "path", manifest, "error", err)
	}

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, *issue); err != nil {
			logger.Warn("recording issue in catalog", "date", issue.Date, "error", err)
		}
	}
	return nil
}

// copyFile copies src to dst through a temp file in dst's directory, so dst
// is either absent, the previous version, or complete. The source
// modification time is preserved.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".epaper-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if info, statErr := in.Stat(); statErr == nil {
		_ = os.Chtimes(tmpPath, info.ModTime(), info.ModTime())
	}
	if err = os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("renaming to %s: %w", dst, err)
	}
	return nil
}

// writeManifest writes the issue record as YAML.
func writeManifest(issue *types.Issue, path string) error {
	data, err := yaml.Marshal(issue)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadManifest reads an issue record written next to an archived PDF.
func ReadManifest(path string) (types.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Issue{}, err
	}
	var issue types.Issue
	if err := yaml.Unmarshal(data, &issue); err != nil {
		return types.Issue{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return issue, nil
}
