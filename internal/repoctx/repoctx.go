// Package repoctx gathers repository files that help explain a build
// failure: dependency manifests, READMEs and workflow definitions.
package repoctx

import (
	"context"
	"errors"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/rootcause/internal/github"
)

const (
	MaxFileBytes    = 100 * 1024
	MaxContentChars = 10000
	truncatedMarker = "\n\n... [truncated]"

	fetchConcurrency = 4
)

// PriorityFiles are fetched in this order when present.
var PriorityFiles = []string{
	"requirements.txt",
	"setup.py",
	"pyproject.toml",
	"package.json",
	"Pipfile",
	"poetry.lock",
	"README.md",
	"README.rst",
	".python-version",
	"runtime.txt",
	"Dockerfile",
	"docker-compose.yml",
}

// Fetcher reads files from a repository. github.Client satisfies it.
type Fetcher interface {
	FileContent(ctx context.Context, repo, path string) (string, error)
	WorkflowFiles(ctx context.Context, repo string) ([]string, error)
}

// File is one fetched file.
type File struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int    `json:"size_bytes"`
	Truncated bool   `json:"truncated"`
}

// RepoContext is what was found in the repository.
type RepoContext struct {
	Repo         string `json:"repo"`
	Files        []File `json:"files"`
	Workflows    []File `json:"workflow_files"`
	Requirements string `json:"requirements,omitempty"`
	Readme       string `json:"readme,omitempty"`
}

// Paths lists every fetched file, priority files first.
func (rc *RepoContext) Paths() []string {
	if rc == nil {
		return nil
	}
	out := make([]string, 0, len(rc.Files)+len(rc.Workflows))
	for _, f := range rc.Files {
		out = append(out, f.Path)
	}
	for _, f := range rc.Workflows {
		out = append(out, f.Path)
	}
	return out
}

// Builder assembles a RepoContext.
type Builder struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(f Fetcher, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{fetcher: f, logger: logger}
}

// Build fetches the priority files and workflow files of repo. Missing or
// unreadable files are skipped; only cancellation is returned as an error.
func (b *Builder) Build(ctx context.Context, repo string) (*RepoContext, error) {
	rc := &RepoContext{Repo: repo}

	files, err := b.fetchAll(ctx, repo, PriorityFiles)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		switch f.Path {
		case "requirements.txt":
			rc.Requirements = f.Content
		case "README.md", "README.rst":
			if rc.Readme == "" {
				rc.Readme = f.Content
			}
		}
	}
	rc.Files = files

	workflows, err := b.fetcher.WorkflowFiles(ctx, repo)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, github.ErrNotFound) {
			b.logger.Warn("list workflow files", zap.String("repo", repo), zap.Error(err))
		}
		return rc, nil
	}
	if rc.Workflows, err = b.fetchAll(ctx, repo, workflows); err != nil {
		return nil, err
	}

	b.logger.Debug("repository context gathered",
		zap.String("repo", repo),
		zap.Int("files", len(rc.Files)),
		zap.Int("workflows", len(rc.Workflows)))
	return rc, nil
}

// fetchAll fetches paths concurrently and returns the usable files in path
// order.
func (b *Builder) fetchAll(ctx context.Context, repo string, paths []string) ([]File, error) {
	files := make([]File, len(paths))
	found := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			files[i], found[i] = b.fetch(gctx, repo, path)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []File
	for i, ok := range found {
		if ok {
			out = append(out, files[i])
		}
	}
	return out, nil
}

func (b *Builder) fetch(ctx context.Context, repo, path string) (File, bool) {
	content, err := b.fetcher.FileContent(ctx, repo, path)
	if err != nil {
		if !errors.Is(err, github.ErrNotFound) && ctx.Err() == nil {
			b.logger.Warn("fetch file", zap.String("repo", repo), zap.String("path", path), zap.Error(err))
		}
		return File{}, false
	}
	if len(content) > MaxFileBytes || !utf8.ValidString(content) {
		return File{}, false
	}

	f := File{Path: path, Content: content, Size: len(content)}
	if utf8.RuneCountInString(content) > MaxContentChars {
		f.Content = string([]rune(content)[:MaxContentChars]) + truncatedMarker
		f.Truncated = true
	}
	return f, true
}
