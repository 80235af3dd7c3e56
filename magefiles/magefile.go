//go:build mage

// Package main contains Mage build targets for kbsync developer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories a local sync expects.
var projectDirs = []string{
	"articles",
	".secrets",
}

// Init creates the working directories and a starter config file.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	if err := os.Chmod(".secrets", 0o700); err != nil {
		return fmt.Errorf("restricting .secrets: %w", err)
	}

	const configFile = "kbsync.yaml"
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := os.WriteFile(configFile, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", configFile, err)
		}
		fmt.Println("  ", configFile)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const starterConfig = `helpcenter:
  base_url: https://support.example.com
  locale: en-us
  max_documents: 30
documents:
  dir: articles
state:
  dsn: kb_state.json
sync:
  workers: 1
`

const (
	binDir  = "bin"
	binName = "kbsync"
	cmdPkg  = "./cmd/kbsync"
)

func binPath() string { return filepath.Join(binDir, binName) }

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	ldflags := "-X main.version=" + strings.TrimSpace(version)
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", binPath(), cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", binPath())
	return nil
}

// Test runs the unit tests. Set KBSYNC_TEST_POSTGRES_DSN to include the
// postgres state backend.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Fetch materializes help center articles into the documents directory.
func Fetch() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "fetch")
}

// Reconcile pushes changed documents to the vector store.
func Reconcile() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "reconcile")
}

// Sync runs fetch then reconcile.
func Sync() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "sync")
}

// Status shows what the next reconcile would do.
func Status() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "status")
}

// Stats prints project metrics: Go production/test LOC and materialized article count.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}
	articles, words, err := countArticles("articles")
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	fmt.Printf("Articles (materialized):        %d\n", articles)
	fmt.Printf("Words (articles):               %d\n", words)
	return nil
}

// countGoLines walks the directory tree and counts non-blank lines in Go files.
// If testOnly is true, count only _test.go files; otherwise count non-test .go files.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		if strings.HasSuffix(path, "_test.go") != testOnly {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				total++
			}
		}
		return nil
	})
	return total, err
}

// countArticles counts materialized markdown files and their words.
func countArticles(root string) (files, words int, err error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, e.Name()))
		if err != nil {
			return 0, 0, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		files++
		words += len(strings.Fields(string(data)))
	}
	return files, words, nil
}
