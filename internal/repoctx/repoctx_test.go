package repoctx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lucasnoah/rootcause/internal/github"
)

type fakeFetcher struct {
	mu        sync.Mutex
	files     map[string]string
	fileErr   map[string]error
	workflows []string
	listErr   error
	requested []string
}

func (f *fakeFetcher) FileContent(_ context.Context, _, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, path)
	if err, ok := f.fileErr[path]; ok {
		return "", err
	}
	c, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, github.ErrNotFound)
	}
	return c, nil
}

func (f *fakeFetcher) WorkflowFiles(context.Context, string) ([]string, error) {
	return f.workflows, f.listErr
}

func TestBuild(t *testing.T) {
	f := &fakeFetcher{
		files: map[string]string{
			"requirements.txt":         "requests==2.31\n",
			"README.md":                "# app",
			"package.json":             `{"name": "app"}`,
			".github/workflows/ci.yml": "on: push\n",
		},
		fileErr:   map[string]error{"Dockerfile": errors.New("gh: HTTP 500")},
		workflows: []string{".github/workflows/ci.yml"},
	}

	rc, err := NewBuilder(f, nil).Build(context.Background(), "octo/app")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{"requirements.txt", "package.json", "README.md", ".github/workflows/ci.yml"}
	if diff := cmp.Diff(want, rc.Paths()); diff != "" {
		t.Errorf("Paths (-want +got):\n%s", diff)
	}
	if rc.Requirements != "requests==2.31\n" {
		t.Errorf("Requirements = %q", rc.Requirements)
	}
	if rc.Readme != "# app" {
		t.Errorf("Readme = %q", rc.Readme)
	}
	if len(f.requested) != len(PriorityFiles)+1 {
		t.Errorf("requested %d files, want %d", len(f.requested), len(PriorityFiles)+1)
	}
}

func TestBuild_SizeLimits(t *testing.T) {
	f := &fakeFetcher{files: map[string]string{
		"poetry.lock":      strings.Repeat("x", MaxFileBytes+1),
		"requirements.txt": strings.Repeat("y", MaxContentChars+5),
		"setup.py":         "bad \xff utf8",
	}}
	rc, err := NewBuilder(f, nil).Build(context.Background(), "octo/app")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"requirements.txt"}, rc.Paths()); diff != "" {
		t.Fatalf("Paths (-want +got):\n%s", diff)
	}
	got := rc.Files[0]
	if !got.Truncated || !strings.HasSuffix(got.Content, truncatedMarker) {
		t.Errorf("expected truncated content, got truncated=%v", got.Truncated)
	}
	if got.Size != MaxContentChars+5 {
		t.Errorf("Size = %d", got.Size)
	}
}

func TestBuild_NoWorkflowDir(t *testing.T) {
	f := &fakeFetcher{listErr: fmt.Errorf("workflows: %w", github.ErrNotFound)}
	rc, err := NewBuilder(f, nil).Build(context.Background(), "octo/app")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(rc.Paths()) != 0 {
		t.Errorf("Paths = %v", rc.Paths())
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBuilder(&fakeFetcher{}, nil).Build(ctx, "octo/app"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestPaths_Nil(t *testing.T) {
	var rc *RepoContext
	if rc.Paths() != nil {
		t.Error("nil context should have no paths")
	}
}
