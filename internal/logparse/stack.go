package logparse

import (
	"strconv"
	"strings"
)

// ExtractStack pulls the Python stack out of the log text that precedes an
// exception line. It starts at the most recent "Traceback" marker and stops at
// the first exception line. An indented non-frame line directly after a frame
// is taken as that frame's source snippet. With no marker both results are
// nil.
func ExtractStack(preceding string) ([]string, []StackFrame) {
	locs := tracebackRe.FindAllStringIndex(preceding, -1)
	if len(locs) == 0 {
		return nil, nil
	}
	return stackFrom(preceding[locs[len(locs)-1][1]:])
}

// stackFrom reads frames from the text following a traceback marker.
func stackFrom(body string) ([]string, []StackFrame) {
	var (
		lines      []string
		frames     []StackFrame
		afterFrame bool
	)
	for raw := range strings.Lines(body) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if exceptionRe.MatchString(line) {
			break
		}
		if m := stackFrameRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[2])
			frames = append(frames, StackFrame{File: m[1], Line: n, Function: m[3]})
			lines = append(lines, line)
			afterFrame = true
			continue
		}
		if afterFrame && indented(raw) {
			frames[len(frames)-1].Code = line
			lines = append(lines, line)
		}
		afterFrame = false
	}
	return lines, frames
}

func indented(line string) bool {
	return line != "" && (line[0] == ' ' || line[0] == '\t')
}
