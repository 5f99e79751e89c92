package logparse

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// scan is the cleaned log handed to each detector.
type scan struct {
	text         string
	exitCode     *int
	contextLines int
	maxContext   int

	// Built on first use and shared by every error in the scan.
	lineStarts []int
	tracebacks []int
	steps      []marker
	groups     []marker
}

// marker is a titled span of the log ending at end.
type marker struct {
	end   int
	title string
}

// detector returns the errors one strategy finds in a log. Detectors are tried
// in order and the first non-empty result is the parse result.
type detector func(s *scan) []ParsedError

var defaultDetectors = []detector{
	detectExceptions,
	detectNpm,
	detectGenericErrors,
	detectPlatformMarkers,
}

const (
	maxGenericErrors = 3
	maxRelevantLines = 10
)

// detectExceptions finds Python exception lines such as
// "ModuleNotFoundError: No module named 'requests'".
func detectExceptions(s *scan) []ParsedError {
	matches := exceptionRe.FindAllStringSubmatchIndex(s.text, -1)
	if len(matches) == 0 {
		return nil
	}
	related := s.testFailureLines()

	var errs []ParsedError
	for _, m := range matches {
		start := m[0]
		errType := s.text[m[2]:m[3]]
		msg := strings.TrimSpace(s.text[m[4]:m[5]])
		stack, frames := s.stack(start)
		errs = append(errs, ParsedError{
			ErrorType:     errType,
			ErrorMessage:  msg,
			Category:      Classify(errType, msg),
			FailedStep:    s.failedStep(start),
			ExitCode:      s.exit(),
			StackTrace:    stack,
			StackFrames:   frames,
			RelevantLines: slices.Clone(related),
			RawErrorBlock: s.block(start),
		})
	}
	return errs
}

// detectNpm reports each missing Node module, or else folds every
// "npm ERR!" line into a single error.
func detectNpm(s *scan) []ParsedError {
	var errs []ParsedError
	for _, m := range missingModuleRe.FindAllStringSubmatchIndex(s.text, -1) {
		errs = append(errs, ParsedError{
			ErrorType:     "ModuleNotFoundError",
			ErrorMessage:  fmt.Sprintf("Cannot find module '%s'", s.text[m[2]:m[3]]),
			Category:      CategoryDependency,
			ExitCode:      s.exit(),
			RawErrorBlock: s.block(m[0]),
		})
	}
	if len(errs) > 0 {
		return errs
	}

	matches := npmErrorRe.FindAllStringSubmatchIndex(s.text, -1)
	if len(matches) == 0 {
		return nil
	}
	var lines []string
	for _, m := range matches {
		if len(lines) == maxRelevantLines {
			break
		}
		lines = append(lines, strings.TrimSpace(s.text[m[2]:m[3]]))
	}
	msg := lines[0]
	if msg == "" {
		msg = "npm installation failed"
	}
	return []ParsedError{{
		ErrorType:     "NpmError",
		ErrorMessage:  msg,
		Category:      CategoryDependency,
		ExitCode:      s.exit(),
		RelevantLines: lines,
		RawErrorBlock: s.block(matches[0][0]),
	}}
}

// detectGenericErrors takes the first few "Error: ..." lines.
func detectGenericErrors(s *scan) []ParsedError {
	var errs []ParsedError
	for _, m := range genericErrorRe.FindAllStringSubmatchIndex(s.text, maxGenericErrors) {
		msg := strings.TrimSpace(s.text[m[2]:m[3]])
		if msg == "" {
			continue
		}
		errs = append(errs, ParsedError{
			ErrorType:     "Error",
			ErrorMessage:  msg,
			Category:      CategoryUnknown,
			ExitCode:      s.exit(),
			RawErrorBlock: s.block(m[0]),
		})
	}
	return errs
}

// detectPlatformMarkers falls back to the runner's ##[error] annotations,
// ignoring the exit code trailer every failed step carries.
func detectPlatformMarkers(s *scan) []ParsedError {
	var errs []ParsedError
	for _, m := range ghErrorRe.FindAllStringSubmatchIndex(s.text, -1) {
		msg := strings.TrimSpace(s.text[m[2]:m[3]])
		if msg == "" || strings.Contains(msg, exitCodeNoise) {
			continue
		}
		errs = append(errs, ParsedError{
			ErrorType:     "GitHubActionsError",
			ErrorMessage:  msg,
			Category:      CategoryUnknown,
			FailedStep:    s.failedStep(m[0]),
			ExitCode:      s.exit(),
			RawErrorBlock: s.block(m[0]),
		})
	}
	return errs
}

// exit returns a fresh copy of the log-wide exit code so errors never share
// a pointer.
func (s *scan) exit() *int {
	if s.exitCode == nil {
		return nil
	}
	v := *s.exitCode
	return &v
}

// failedStep returns the first line of the last "##[group]Run ..." marker
// before pos, or the last group title of any kind.
func (s *scan) failedStep(pos int) string {
	if s.steps == nil {
		s.steps = markers(failedStepRe, s.text)
		s.groups = markers(ghGroupRe, s.text)
	}
	step, ok := lastBefore(s.steps, pos)
	if !ok {
		step, ok = lastBefore(s.groups, pos)
	}
	if !ok {
		return ""
	}
	step = strings.TrimSpace(step)
	if i := strings.IndexByte(step, '\n'); i >= 0 {
		step = strings.TrimSpace(step[:i])
	}
	return step
}

func markers(re *regexp.Regexp, text string) []marker {
	out := []marker{}
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, marker{end: m[1], title: text[m[2]:m[3]]})
	}
	return out
}

// lastBefore returns the title of the last marker that ends at or before pos.
func lastBefore(ms []marker, pos int) (string, bool) {
	i := sort.Search(len(ms), func(i int) bool { return ms[i].end > pos })
	if i == 0 {
		return "", false
	}
	return ms[i-1].title, true
}

// stack returns the traceback preceding pos, read from the most recent
// marker that ends before it.
func (s *scan) stack(pos int) ([]string, []StackFrame) {
	if s.tracebacks == nil {
		s.tracebacks = []int{}
		for _, loc := range tracebackRe.FindAllStringIndex(s.text, -1) {
			s.tracebacks = append(s.tracebacks, loc[1])
		}
	}
	i := sort.SearchInts(s.tracebacks, pos+1)
	if i == 0 {
		return nil, nil
	}
	return stackFrom(s.text[s.tracebacks[i-1]:pos])
}

// block returns the lines around pos, contextLines either side, bounded to
// maxContext bytes.
func (s *scan) block(pos int) string {
	if s.lineStarts == nil {
		s.lineStarts = []int{0}
		for i := 0; i < len(s.text); i++ {
			if s.text[i] == '\n' {
				s.lineStarts = append(s.lineStarts, i+1)
			}
		}
	}
	idx := sort.SearchInts(s.lineStarts, pos+1) - 1
	first := max(0, idx-s.contextLines)
	last := min(len(s.lineStarts)-1, idx+s.contextLines)
	end := len(s.text)
	if last+1 < len(s.lineStarts) {
		end = s.lineStarts[last+1] - 1
	}
	return truncate(s.text[s.lineStarts[first]:end], s.maxContext)
}

// testFailureLines collects pytest "FAILED <test>" and assertion lines.
func (s *scan) testFailureLines() []string {
	var out []string
	for _, m := range pytestFailedRe.FindAllStringSubmatch(s.text, -1) {
		out = append(out, "FAILED "+m[1])
	}
	for _, m := range assertionErrorRe.FindAllStringSubmatch(s.text, -1) {
		out = append(out, "AssertionError: "+strings.TrimSpace(m[1]))
	}
	if len(out) > maxRelevantLines {
		out = out[:maxRelevantLines]
	}
	return out
}

func findExitCode(text string) *int {
	m := exitCodeRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
