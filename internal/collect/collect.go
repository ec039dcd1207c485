// Package collect checks out a repository snapshot, filters its files by
// subdirectory and extension allowlist, and packages the result into a single
// zip archive held in memory. The exec-git part is isolated in Clone so the
// deterministic filter and archive steps stay testable without a network.
package collect

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// ErrInvalidRepoURL indicates the repository URL cannot be parsed into an
// owner/repository pair. This is a caller mistake, not a transient failure.
var ErrInvalidRepoURL = errors.New("invalid repository URL")

// ErrCloneFailed indicates git could not check out the repository.
var ErrCloneFailed = errors.New("clone failed")

// Request describes one repository snapshot to collect.
type Request struct {
	URL            string   // e.g. https://github.com/org/repo.git
	Branch         string   // e.g. main
	Directory      string   // subdirectory to collect from, "" for the root
	FileExtensions []string // allowlist without dots, e.g. ["md"]
}

// Collector produces zip archives of filtered repository snapshots.
type Collector struct {
	logger *slog.Logger
}

// New creates a Collector.
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger}
}

// Collect clones the repository shallowly, filters files under the requested
// subdirectory by extension, and returns the filtered set as zip bytes.
// The temporary checkout is always removed before returning.
func (c *Collector) Collect(ctx context.Context, req Request) ([]byte, error) {
	repoPath, err := ParseRepoPath(req.URL)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "docpipe-collect-*")
	if err != nil {
		return nil, fmt.Errorf("creating checkout directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := clone(ctx, req.URL, req.Branch, tmpDir); err != nil {
		return nil, err
	}
	c.logger.Debug("cloned repository", "repo", repoPath, "branch", req.Branch)

	root := filepath.Join(tmpDir, filepath.FromSlash(req.Directory))
	files, err := FilterFiles(root, req.FileExtensions)
	if err != nil {
		return nil, fmt.Errorf("filtering %q: %w", req.Directory, err)
	}
	c.logger.Info("collected files", "repo", repoPath, "count", len(files))

	return BuildArchive(root, files)
}

// ParseRepoPath extracts "owner/repo" from a repository URL.
func ParseRepoPath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRepoURL, parsed.Scheme)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: path %q does not name owner/repo", ErrInvalidRepoURL, parsed.Path)
	}

	return parts[0] + "/" + strings.TrimSuffix(parts[1], ".git"), nil
}

// clone performs a shallow single-branch checkout into dir.
func clone(ctx context.Context, repoURL, branch, dir string) error {
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, repoURL, dir)

	cmd := exec.CommandContext(ctx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: git %s: %s", ErrCloneFailed, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

// FilterFiles walks root and returns the paths (relative to root, slash
// separated) of regular files whose extension is in the allowlist. The result
// is sorted so collection is deterministic for a given snapshot.
func FilterFiles(root string, extensions []string) ([]string, error) {
	allow := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		allow = append(allow, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Never descend into the VCS metadata.
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
		if !slices.Contains(allow, ext) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// BuildArchive packages the given files (relative to root) into a zip held in
// memory. Entry names keep their relative paths so name collisions across
// subdirectories cannot occur.
func BuildArchive(root string, files []string) ([]byte, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", name, err)
		}

		w, err := archive.Create(name)
		if err != nil {
			return nil, fmt.Errorf("adding %q to archive: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("writing %q to archive: %w", name, err)
		}
	}

	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}
