package ingestion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/poiesic/transcripts/core"
)

// IgnoreFileName is read from each corpus root and holds extra ignore
// patterns in gitignore syntax.
const IgnoreFileName = ".ingestignore"

var (
	// DefaultExtensions lists the file extensions treated as transcripts.
	DefaultExtensions = []string{".txt"}

	// DefaultIgnorePatterns excludes manifests left by earlier tooling and
	// hidden files.
	DefaultIgnorePatterns = []string{
		"master_manifest*",
		"file_index.json",
		".*",
	}
)

// ScannedFile is a candidate transcript found under a corpus root.
type ScannedFile struct {
	Root     string
	Path     string
	Identity string
}

// Scanner enumerates transcript files under corpus roots.
type Scanner struct {
	extensions map[string]struct{}
	patterns   []string
	logger     *slog.Logger
}

// NewScanner creates a scanner. Empty extensions select DefaultExtensions.
// patterns are added to the per-root .ingestignore rules.
func NewScanner(extensions []string, patterns []string, logger *slog.Logger) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Scanner{
		extensions: exts,
		patterns:   append([]string(nil), patterns...),
		logger:     logger.With("component", "scanner"),
	}
}

// Matches reports whether path has a transcript extension.
func (s *Scanner) Matches(path string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan walks roots in order. Files that cannot be visited and files whose
// identity was already produced by an earlier root are returned as failures.
// A root that does not exist or is not a directory is a configuration error.
func (s *Scanner) Scan(ctx context.Context, roots []string) ([]ScannedFile, []Failure, error) {
	var (
		files    []ScannedFile
		failures []Failure
		seen     = make(map[string]string)
	)

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: corpus root %q: %w", core.ErrConfiguration, root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: corpus root %q: %w", core.ErrConfiguration, root, err)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("%w: corpus root %q is not a directory", core.ErrConfiguration, root)
		}

		matcher, err := s.matcher(abs)
		if err != nil {
			return nil, nil, err
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(abs, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return walkErr
			}
			identity := filepath.ToSlash(rel)

			if matcher.MatchesPath(identity) {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if walkErr != nil {
				s.logger.Warn("cannot read path", "path", path, "err", walkErr)
				failures = append(failures, Failure{Identity: identity, Kind: core.ErrRead, Err: walkErr})
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() || !s.Matches(path) {
				return nil
			}

			if first, dup := seen[identity]; dup {
				err := fmt.Errorf("duplicate identity, already found under %s", first)
				s.logger.Warn("skipping duplicate identity", "identity", identity, "path", path, "first_root", first)
				failures = append(failures, Failure{Identity: identity, Kind: core.ErrRead, Err: err})
				return nil
			}
			seen[identity] = abs
			files = append(files, ScannedFile{Root: abs, Path: path, Identity: identity})
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("%w: walking %q: %w", core.ErrRead, root, err)
		}
	}

	s.logger.Debug("scan complete", "roots", len(roots), "files", len(files), "failures", len(failures))
	return files, failures, nil
}

func (s *Scanner) matcher(root string) (*gitignore.GitIgnore, error) {
	lines := append([]string(nil), s.patterns...)

	extra, err := readIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", core.ErrConfiguration, IgnoreFileName, err)
	}
	lines = append(lines, extra...)

	return gitignore.CompileIgnoreLines(lines...), nil
}

// readIgnoreFile returns the patterns of an ignore file, or nothing if it
// does not exist.
func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, sc.Err()
}
