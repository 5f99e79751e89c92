// Package prompt renders the model prompts used by the analysis agents.
// Built-in templates are embedded; a file named <name>.md in the override
// directory replaces the built-in template of the same name.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

// Template names.
const (
	TriageSystem    = "triage-system"
	Triage          = "triage"
	Research        = "research"
	SynthesisSystem = "synthesis-system"
	Synthesis       = "synthesis"
)

//go:embed templates/*.md
var builtinFS embed.FS

// Library loads and renders templates.
type Library struct {
	overrideDir string
}

// NewLibrary returns a Library that prefers templates in overrideDir.
// An empty overrideDir uses only the built-in templates.
func NewLibrary(overrideDir string) *Library {
	return &Library{overrideDir: overrideDir}
}

// DefaultDir returns ~/.rootcause/prompts, or "" if the home directory is
// unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rootcause", "prompts")
}

// Names lists the built-in template names.
func Names() []string {
	entries, _ := fs.ReadDir(builtinFS, "templates")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(names)
	return names
}

// Load returns the source of the named template.
func (l *Library) Load(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid template name %q", name)
	}
	if l.overrideDir != "" {
		if data, err := os.ReadFile(filepath.Join(l.overrideDir, name+".md")); err == nil {
			return string(data), nil
		}
	}
	data, err := builtinFS.ReadFile("templates/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("no prompt template %q (checked %s and built-ins)", name, l.overrideDir)
	}
	return string(data), nil
}

// Render executes the named template with data.
func (l *Library) Render(name string, data any) (string, error) {
	src, err := l.Load(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.String(), nil
}

// InstallBuiltin writes the built-in templates into dir so they can be
// edited. Existing files are left alone.
func InstallBuiltin(dir string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("no template directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	var written []string
	for _, name := range Names() {
		path := filepath.Join(dir, name+".md")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		data, err := builtinFS.ReadFile("templates/" + name + ".md")
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("write template %q: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
