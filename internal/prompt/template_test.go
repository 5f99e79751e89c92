package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNames(t *testing.T) {
	want := []string{Research, Synthesis, SynthesisSystem, Triage, TriageSystem}
	if diff := cmp.Diff(want, Names()); diff != "" {
		t.Errorf("Names (-want +got):\n%s", diff)
	}
}

func TestRender_Builtin(t *testing.T) {
	lib := NewLibrary("")
	out, err := lib.Render(Triage, map[string]any{
		"ErrorType":     "ModuleNotFoundError",
		"ErrorMessage":  "No module named 'requests'",
		"Category":      "dependency",
		"FailedStep":    "pytest",
		"ExitCode":      "1",
		"StackTrace":    "No stack trace available",
		"RawErrorBlock": "...",
		"Categories":    []string{"missing_package", "unknown"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"**Error Type:** ModuleNotFoundError",
		"No module named 'requests'",
		"missing_package, unknown",
		`"confidence_score"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered prompt missing %q", want)
		}
	}
}

func TestRender_MissingKey(t *testing.T) {
	_, err := NewLibrary("").Render(Triage, map[string]any{"ErrorType": "X"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if !strings.Contains(err.Error(), "execute template") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_Override(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "triage.md"), []byte("custom {{.ErrorType}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	lib := NewLibrary(dir)

	out, err := lib.Render(Triage, map[string]string{"ErrorType": "KeyError"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "custom KeyError" {
		t.Errorf("out = %q", out)
	}

	src, err := lib.Load(Research)
	if err != nil {
		t.Fatalf("Load research: %v", err)
	}
	if !strings.Contains(src, "web_findings_summary") {
		t.Error("expected built-in research template when no override exists")
	}
}

func TestLoad_InvalidName(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	for _, name := range []string{"", "../etc/passwd", "a/b", `a\b`, "nope"} {
		if _, err := lib.Load(name); err == nil {
			t.Errorf("Load(%q) = nil error", name)
		}
	}
}

func TestInstallBuiltin(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(dir, "triage.md")
	if err := os.WriteFile(keep, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	written, err := InstallBuiltin(dir)
	if err != nil {
		t.Fatalf("InstallBuiltin: %v", err)
	}
	if len(written) != len(Names())-1 {
		t.Errorf("wrote %d files, want %d", len(written), len(Names())-1)
	}
	data, _ := os.ReadFile(keep)
	if string(data) != "mine" {
		t.Error("existing template was overwritten")
	}

	again, err := InstallBuiltin(dir)
	if err != nil || len(again) != 0 {
		t.Errorf("second install wrote %v, err %v", again, err)
	}
}
