// Package main contains Mage build targets for epaper developer tooling.
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/xdg"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "epaper"
	cmdPkg  = "./cmd/epaper"
)

// dataDirs lists the default directories the CLI reads and writes.
func dataDirs() []string {
	return []string{
		filepath.Join(xdg.CacheHome, "epaper"),
		filepath.Join(xdg.DataHome, "epaper", "issues"),
		filepath.Join(xdg.ConfigHome, "epaper"),
	}
}

// Init creates the default scratch, archive and config directories.
func Init() error {
	for _, dir := range dataDirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Directories initialized.")
	return nil
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests of every package.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Fetch builds the CLI and downloads the issue for date (YYYYMMDD).
func Fetch(date string) error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "fetch", date)
}

// Stats prints non-blank Go lines per package directory, production and
// tests separately.
func Stats() error {
	stats, err := countLines(".")
	if err != nil {
		return err
	}
	var prod, test int
	fmt.Printf("%-24s %8s %8s\n", "package", "code", "tests")
	for _, s := range stats {
		fmt.Printf("%-24s %8d %8d\n", s.dir, s.prod, s.test)
		prod += s.prod
		test += s.test
	}
	fmt.Printf("%-24s %8d %8d\n", "total", prod, test)
	return nil
}

// lineStats counts the non-blank Go lines of one package directory.
type lineStats struct {
	dir        string
	prod, test int
}

// countLines walks root and returns line counts per directory holding Go
// files, sorted by directory. Directories the go tool ignores are skipped.
func countLines(root string) ([]lineStats, error) {
	byDir := map[string]*lineStats{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		dir, _ := filepath.Rel(root, filepath.Dir(path))
		st, ok := byDir[dir]
		if !ok {
			st = &lineStats{dir: filepath.ToSlash(dir)}
			byDir[dir] = st
		}
		n := nonBlankLines(data)
		if strings.HasSuffix(path, "_test.go") {
			st.test += n
		} else {
			st.prod += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := make([]lineStats, 0, len(byDir))
	for _, st := range byDir {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].dir < stats[j].dir })
	return stats, nil
}

func nonBlankLines(data []byte) int {
	n := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}
