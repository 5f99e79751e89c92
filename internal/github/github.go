package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the GitHub API answers 404.
var ErrNotFound = errors.New("not found")

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return string(out), nil
}

// Client provides the GitHub operations the analyzer needs.
type Client struct {
	cmd CmdRunner
}

// NewClient creates a GitHub client.
func NewClient(cmd CmdRunner) *Client {
	return &Client{cmd: cmd}
}

// WorkflowRun is one GitHub Actions run as reported by `gh run list`.
type WorkflowRun struct {
	DatabaseID   int64     `json:"databaseId"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	WorkflowName string    `json:"workflowName"`
	HeadBranch   string    `json:"headBranch"`
	HeadSHA      string    `json:"headSha"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Failed reports whether the run concluded with a failure.
func (r WorkflowRun) Failed() bool {
	return r.Conclusion == "failure"
}

var repoRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ValidateRepo checks that repo looks like "owner/name".
func ValidateRepo(repo string) error {
	if !repoRe.MatchString(repo) {
		return fmt.Errorf("invalid repository %q: want owner/name", repo)
	}
	return nil
}

const runFields = "databaseId,status,conclusion,workflowName,headBranch,headSha,url,createdAt"

// LatestCompletedRun returns the most recent completed workflow run, or nil
// when the repository has none.
func (c *Client) LatestCompletedRun(ctx context.Context, repo string) (*WorkflowRun, error) {
	if err := ValidateRepo(repo); err != nil {
		return nil, err
	}
	out, err := c.cmd.Run(ctx, "run", "list", "--repo", repo, "--status", "completed", "--limit", "1", "--json", runFields)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", repo, err)
	}

	var runs []WorkflowRun
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		return nil, fmt.Errorf("parse run list JSON: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// RunLog downloads the combined log of every job in a workflow run.
func (c *Client) RunLog(ctx context.Context, repo string, runID int64) (string, error) {
	out, err := c.cmd.Run(ctx, "run", "view", strconv.FormatInt(runID, 10), "--repo", repo, "--log")
	if err != nil {
		return "", fmt.Errorf("download log for run %d: %w", runID, err)
	}
	return out, nil
}

// FileContent returns the raw content of path on the default branch.
// A missing file returns ErrNotFound.
func (c *Client) FileContent(ctx context.Context, repo, path string) (string, error) {
	endpoint := fmt.Sprintf("repos/%s/contents/%s", repo, strings.TrimPrefix(path, "/"))
	out, err := c.cmd.Run(ctx, "api", "-H", "Accept: application/vnd.github.raw", endpoint)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("get %s from %s: %w", path, repo, err)
	}
	return out, nil
}

// WorkflowFiles lists the workflow definitions under .github/workflows.
func (c *Client) WorkflowFiles(ctx context.Context, repo string) ([]string, error) {
	endpoint := fmt.Sprintf("repos/%s/contents/.github/workflows", repo)
	out, err := c.cmd.Run(ctx, "api", endpoint, "--jq", ".[].path")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list workflows for %s: %w", repo, err)
	}

	var paths []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasSuffix(line, ".yml") || strings.HasSuffix(line, ".yaml") {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "HTTP 404") || strings.Contains(msg, "Not Found")
}
