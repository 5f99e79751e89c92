package logparse

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const moduleNotFoundLog = "Traceback (most recent call last):\n" +
	"  File \"a.py\", line 3, in f\n" +
	"    x\n" +
	"ModuleNotFoundError: No module named 'requests'"

func TestParse_PythonTraceback(t *testing.T) {
	r := Parse(moduleNotFoundLog)
	if !r.Success {
		t.Fatal("expected success")
	}
	if r.Primary == nil {
		t.Fatal("expected a primary error")
	}
	if r.Primary.ErrorType != "ModuleNotFoundError" {
		t.Errorf("ErrorType = %q, want %q", r.Primary.ErrorType, "ModuleNotFoundError")
	}
	if r.Primary.ErrorMessage != "No module named 'requests'" {
		t.Errorf("ErrorMessage = %q", r.Primary.ErrorMessage)
	}
	if r.Primary.Category != CategoryDependency {
		t.Errorf("Category = %q, want dependency", r.Primary.Category)
	}
	want := []StackFrame{{File: "a.py", Line: 3, Function: "f", Code: "x"}}
	if diff := cmp.Diff(want, r.Primary.StackFrames); diff != "" {
		t.Errorf("StackFrames mismatch (-want +got):\n%s", diff)
	}
	if r.Summary != "ModuleNotFoundError: No module named 'requests'" {
		t.Errorf("Summary = %q", r.Summary)
	}
	if r.TotalLines != 4 {
		t.Errorf("TotalLines = %d, want 4", r.TotalLines)
	}
}

func TestParse_NpmErrors(t *testing.T) {
	log := "> app@1.0.0 test\nnpm ERR! missing script: test\nnpm ERR! A complete log of this run can be found in: /tmp/x.log\n"
	r := Parse(log)
	if r.ErrorCount != 1 || len(r.Errors) != 1 {
		t.Fatalf("ErrorCount = %d, want 1", r.ErrorCount)
	}
	e := r.Errors[0]
	if e.ErrorType != "NpmError" {
		t.Errorf("ErrorType = %q, want NpmError", e.ErrorType)
	}
	if e.Category != CategoryDependency {
		t.Errorf("Category = %q, want dependency", e.Category)
	}
	if e.ErrorMessage != "missing script: test" {
		t.Errorf("ErrorMessage = %q", e.ErrorMessage)
	}
	if len(e.RelevantLines) != 2 {
		t.Errorf("RelevantLines = %d, want 2", len(e.RelevantLines))
	}
}

func TestParse_NpmRelevantLinesCapped(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "npm ERR! line %d\n", i)
	}
	r := Parse(b.String())
	if r.ErrorCount != 1 {
		t.Fatalf("ErrorCount = %d, want 1", r.ErrorCount)
	}
	if got := len(r.Errors[0].RelevantLines); got != 10 {
		t.Errorf("RelevantLines = %d, want 10", got)
	}
}

func TestParse_MissingNodeModules(t *testing.T) {
	log := "Error: Cannot find module 'express'\nRequire stack:\nError: Cannot find module \"lodash\"\nnpm ERR! code 1\n"
	r := Parse(log)
	if r.ErrorCount != 2 {
		t.Fatalf("ErrorCount = %d, want 2", r.ErrorCount)
	}
	wantMsgs := []string{"Cannot find module 'express'", "Cannot find module 'lodash'"}
	for i, e := range r.Errors {
		if e.ErrorType != "ModuleNotFoundError" {
			t.Errorf("[%d] ErrorType = %q", i, e.ErrorType)
		}
		if e.ErrorMessage != wantMsgs[i] {
			t.Errorf("[%d] ErrorMessage = %q, want %q", i, e.ErrorMessage, wantMsgs[i])
		}
		if e.Category != CategoryDependency {
			t.Errorf("[%d] Category = %q", i, e.Category)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	r := Parse("")
	if !r.Success {
		t.Error("expected success for empty input")
	}
	if r.ErrorCount != 0 || r.Primary != nil {
		t.Errorf("ErrorCount = %d, Primary = %v; want none", r.ErrorCount, r.Primary)
	}
	if r.Summary != NoErrorSummary {
		t.Errorf("Summary = %q, want sentinel", r.Summary)
	}
}

func TestParse_NoMatch(t *testing.T) {
	r := Parse("Run actions/checkout@v4\nSyncing repository\nall good\n")
	if !r.Success || r.ErrorCount != 0 {
		t.Errorf("Success = %v, ErrorCount = %d", r.Success, r.ErrorCount)
	}
	if r.Summary != NoErrorSummary {
		t.Errorf("Summary = %q", r.Summary)
	}
}

func TestParse_GenericErrorsCappedAtThree(t *testing.T) {
	log := "Error: one\nERROR: two\nerror: three\nError: four\nError: five\n"
	r := Parse(log)
	if r.ErrorCount != 3 {
		t.Fatalf("ErrorCount = %d, want 3", r.ErrorCount)
	}
	for i, want := range []string{"one", "two", "three"} {
		if r.Errors[i].ErrorMessage != want {
			t.Errorf("[%d] ErrorMessage = %q, want %q", i, r.Errors[i].ErrorMessage, want)
		}
		if r.Errors[i].ErrorType != "Error" || r.Errors[i].Category != CategoryUnknown {
			t.Errorf("[%d] = %s/%s", i, r.Errors[i].ErrorType, r.Errors[i].Category)
		}
	}
}

func TestParse_PlatformMarkersSkipExitCodeNoise(t *testing.T) {
	log := "##[group]Run make build\nmake build\n##[endgroup]\n" +
		"##[error]The build target is broken\n" +
		"##[error]Process completed with exit code 2.\n"
	r := Parse(log)
	if r.ErrorCount != 1 {
		t.Fatalf("ErrorCount = %d, want 1", r.ErrorCount)
	}
	e := r.Errors[0]
	if e.ErrorType != "GitHubActionsError" {
		t.Errorf("ErrorType = %q", e.ErrorType)
	}
	if e.ErrorMessage != "The build target is broken" {
		t.Errorf("ErrorMessage = %q", e.ErrorMessage)
	}
	if e.ExitCode == nil || *e.ExitCode != 2 {
		t.Errorf("ExitCode = %v, want 2", e.ExitCode)
	}
	if e.FailedStep != "make build" {
		t.Errorf("FailedStep = %q, want %q", e.FailedStep, "make build")
	}
}

func TestParse_OnlyExitCodeNoise(t *testing.T) {
	r := Parse("##[error]Process completed with exit code 1.\n")
	if r.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0", r.ErrorCount)
	}
}

func TestParse_StripsTimestamps(t *testing.T) {
	log := "2024-01-15T10:30:00.1234567Z ##[group]Run pytest tests/\n" +
		"2024-01-15T10:30:00.2234567Z pytest tests/\n" +
		"2024-01-15T10:30:01.0000000Z ValueError: invalid literal for int()\n" +
		"2024-01-15T10:30:02.0000000Z ##[error]Process completed with exit code 1.\n"
	r := Parse(log)
	if r.Primary == nil {
		t.Fatal("expected a primary error")
	}
	if r.Primary.ErrorType != "ValueError" {
		t.Errorf("ErrorType = %q", r.Primary.ErrorType)
	}
	if r.Primary.Category != CategoryRuntime {
		t.Errorf("Category = %q, want runtime", r.Primary.Category)
	}
	if r.Primary.FailedStep != "pytest tests/" {
		t.Errorf("FailedStep = %q", r.Primary.FailedStep)
	}
	if r.Primary.ExitCode == nil || *r.Primary.ExitCode != 1 {
		t.Errorf("ExitCode = %v, want 1", r.Primary.ExitCode)
	}
	if strings.Contains(r.Primary.RawErrorBlock, "2024-01-15T") {
		t.Error("RawErrorBlock still carries timestamps")
	}
}

func TestParse_SharedExitCodeAcrossErrors(t *testing.T) {
	log := "KeyError: 'a'\nexit code: 3\nTypeError: bad operand\nexit code: 7\n"
	r := Parse(log)
	if r.ErrorCount != 2 {
		t.Fatalf("ErrorCount = %d, want 2", r.ErrorCount)
	}
	for i, e := range r.Errors {
		if e.ExitCode == nil || *e.ExitCode != 3 {
			t.Errorf("[%d] ExitCode = %v, want 3", i, e.ExitCode)
		}
	}
	if r.Errors[0].ExitCode == r.Errors[1].ExitCode {
		t.Error("errors share an exit code pointer")
	}
}

func TestParse_FrameCountMatchesStack(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		var b strings.Builder
		b.WriteString("collecting ...\nTraceback (most recent call last):\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "  File \"/app/mod%d.py\", line %d, in fn%d\n    call_%d()\n", i, i+10, i, i)
		}
		b.WriteString("AttributeError: 'NoneType' object has no attribute 'x'\n")

		r := Parse(b.String())
		if r.Primary == nil {
			t.Fatalf("n=%d: no primary error", n)
		}
		frames := r.Primary.StackFrames
		if len(frames) != n {
			t.Fatalf("n=%d: got %d frames", n, len(frames))
		}
		for i, f := range frames {
			if f.File != fmt.Sprintf("/app/mod%d.py", i) || f.Line != i+10 {
				t.Errorf("n=%d frame %d = %+v, out of log order", n, i, f)
			}
			if f.Code != fmt.Sprintf("call_%d()", i) {
				t.Errorf("n=%d frame %d Code = %q", n, i, f.Code)
			}
		}
	}
}

func TestParse_ContextWindow(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, fmt.Sprintf("line %02d", i))
	}
	lines[20] = "IndexError: list index out of range"
	r := (&Parser{ContextLines: 3}).Parse(strings.Join(lines, "\n"))
	if r.Primary == nil {
		t.Fatal("expected a primary error")
	}
	want := strings.Join(lines[17:24], "\n")
	if r.Primary.RawErrorBlock != want {
		t.Errorf("RawErrorBlock = %q, want %q", r.Primary.RawErrorBlock, want)
	}
}

func TestParse_ContextBounded(t *testing.T) {
	long := strings.Repeat("y", 5000)
	r := Parse(long + "\nKeyError: 'k'\n" + long)
	if r.Primary == nil {
		t.Fatal("expected a primary error")
	}
	if got := len(r.Primary.RawErrorBlock); got > DefaultMaxContextChars {
		t.Errorf("RawErrorBlock length = %d, want <= %d", got, DefaultMaxContextChars)
	}
}

func TestParse_KeepsLogTail(t *testing.T) {
	noise := strings.Repeat("SyntaxError: old noise\n", 10)
	log := noise + strings.Repeat("ok\n", 50) + "TypeError: recent failure\n"
	r := (&Parser{MaxLogBytes: 80}).Parse(log)
	if r.ErrorCount != 1 {
		t.Fatalf("ErrorCount = %d, want 1", r.ErrorCount)
	}
	if r.Primary.ErrorType != "TypeError" {
		t.Errorf("ErrorType = %q, want TypeError", r.Primary.ErrorType)
	}
	if r.TotalLines != strings.Count(log, "\n")+1 {
		t.Errorf("TotalLines = %d, counts should cover the whole input", r.TotalLines)
	}
}

func TestParse_RelevantTestFailures(t *testing.T) {
	log := "FAILED tests/test_api.py::test_get - AssertionError: expected 200\n" +
		"AssertionError: expected 200\n"
	r := Parse(log)
	if r.Primary == nil {
		t.Fatal("expected a primary error")
	}
	if r.Primary.Category != CategoryTestFailure {
		t.Errorf("Category = %q, want test_failure", r.Primary.Category)
	}
	if len(r.Primary.RelevantLines) == 0 || r.Primary.RelevantLines[0] != "FAILED tests/test_api.py::test_get" {
		t.Errorf("RelevantLines = %q", r.Primary.RelevantLines)
	}
}

func TestParse_SummaryTruncated(t *testing.T) {
	msg := strings.Repeat("é", 150)
	r := Parse("ValueError: " + msg)
	want := "ValueError: " + strings.Repeat("é", 100)
	if r.Summary != want {
		t.Errorf("Summary has %d runes, want 100-rune message", len([]rune(r.Summary)))
	}
}

func TestParse_PrimaryEqualsFirst(t *testing.T) {
	r := Parse("KeyError: 'a'\nValueError: b\n")
	if r.Primary == nil || len(r.Errors) == 0 {
		t.Fatal("expected errors")
	}
	if diff := cmp.Diff(r.Errors[0], *r.Primary); diff != "" {
		t.Errorf("Primary differs from Errors[0]:\n%s", diff)
	}
	if r.ErrorCount != len(r.Errors) {
		t.Errorf("ErrorCount = %d, len = %d", r.ErrorCount, len(r.Errors))
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build_log.txt")
	if err := os.WriteFile(path, []byte(moduleNotFoundLog), 0o644); err != nil {
		t.Fatal(err)
	}
	r := ParseFile(path)
	if !r.Success || r.Primary == nil {
		t.Fatalf("ParseFile = %+v", r)
	}
	if r.Primary.ErrorType != "ModuleNotFoundError" {
		t.Errorf("ErrorType = %q", r.Primary.ErrorType)
	}
}

func TestParseFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.txt")
	r := ParseFile(path)
	if r.Success {
		t.Error("expected success=false for a missing file")
	}
	if r.Summary != "Log file not found: "+path {
		t.Errorf("Summary = %q", r.Summary)
	}
}

func TestParse_SkipsBlankExceptionMessage(t *testing.T) {
	text := "Traceback (most recent call last):\n" +
		"  File \"a.py\", line 3, in f\n" +
		"KeyError:  \n" +
		"ValueError: bad value"
	r := Parse(text)
	if r.ErrorCount != 1 {
		t.Fatalf("ErrorCount = %d, want 1: %+v", r.ErrorCount, r.Errors)
	}
	if r.Primary.ErrorType != "ValueError" || r.Primary.ErrorMessage != "bad value" {
		t.Errorf("Primary = %s: %q", r.Primary.ErrorType, r.Primary.ErrorMessage)
	}

	if r := Parse("KeyError:  "); r.ErrorCount != 0 || r.Summary != NoErrorSummary {
		t.Errorf("blank-only message: count=%d summary=%q", r.ErrorCount, r.Summary)
	}
}

func TestParse_ManyErrorsKeepTheirOwnStepAndBlock(t *testing.T) {
	const n = 50
	var lines []string
	for i := range n {
		lines = append(lines, fmt.Sprintf("##[group]Run step-%d", i), fmt.Sprintf("KeyError: e-%d", i))
	}
	r := (&Parser{ContextLines: 1}).Parse(strings.Join(lines, "\n"))
	if r.ErrorCount != n {
		t.Fatalf("ErrorCount = %d, want %d", r.ErrorCount, n)
	}
	for i, e := range r.Errors {
		if want := fmt.Sprintf("step-%d", i); e.FailedStep != want {
			t.Errorf("error %d: FailedStep = %q, want %q", i, e.FailedStep, want)
		}
		end := min(len(lines), 2*i+3)
		if want := strings.Join(lines[2*i:end], "\n"); e.RawErrorBlock != want {
			t.Errorf("error %d: RawErrorBlock = %q, want %q", i, e.RawErrorBlock, want)
		}
	}
}

func BenchmarkParse_ManyExceptions(b *testing.B) {
	var sb strings.Builder
	for sb.Len() < DefaultMaxLogBytes {
		sb.WriteString("KeyError: x\n")
	}
	text := sb.String()
	b.ResetTimer()
	for range b.N {
		Parse(text)
	}
}
