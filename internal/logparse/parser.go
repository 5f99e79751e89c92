package logparse

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	DefaultContextLines    = 10
	DefaultMaxLogBytes     = 100 * 1024
	DefaultMaxContextChars = 2000
	summaryMessageRunes    = 100
)

// Parser turns raw CI build logs into structured errors. The zero value is
// usable and applies the defaults.
type Parser struct {
	// ContextLines is how many lines either side of an error go into
	// RawErrorBlock.
	ContextLines int
	// MaxLogBytes caps the parsed input; longer logs keep their tail.
	MaxLogBytes int
	// MaxContextChars caps RawErrorBlock.
	MaxContextChars int
}

// Parse parses log text with the default Parser.
func Parse(raw string) Result {
	return (&Parser{}).Parse(raw)
}

// ParseFile parses the log at path with the default Parser.
func ParseFile(path string) Result {
	return (&Parser{}).ParseFile(path)
}

// ParseFile reads and parses the log at path. A missing or unreadable file
// yields Success=false with a descriptive summary.
func (p *Parser) ParseFile(path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Summary: fmt.Sprintf("Log file not found: %s", path)}
		}
		return Result{Summary: fmt.Sprintf("Log file unreadable: %s: %v", path, err)}
	}
	return p.Parse(strings.ToValidUTF8(string(data), "�"))
}

// Parse runs the detectors over raw in order and keeps the first non-empty
// result. It never fails; a log with nothing recognizable yields
// Success=true with no errors.
func (p *Parser) Parse(raw string) Result {
	total := strings.Count(raw, "\n") + 1

	text := timestampRe.ReplaceAllString(tail(raw, p.maxLogBytes()), "")
	s := &scan{
		text:         text,
		exitCode:     findExitCode(text),
		contextLines: p.contextLines(),
		maxContext:   p.maxContextChars(),
	}

	var errs []ParsedError
	for _, detect := range defaultDetectors {
		if errs = detect(s); len(errs) > 0 {
			break
		}
	}

	res := Result{
		Success:    true,
		Errors:     errs,
		TotalLines: total,
		ErrorCount: len(errs),
		Summary:    NoErrorSummary,
	}
	if len(errs) > 0 {
		primary := errs[0]
		res.Primary = &primary
		res.Summary = fmt.Sprintf("%s: %s", primary.ErrorType, firstRunes(primary.ErrorMessage, summaryMessageRunes))
	}
	return res
}

func (p *Parser) contextLines() int {
	if p.ContextLines > 0 {
		return p.ContextLines
	}
	return DefaultContextLines
}

func (p *Parser) maxLogBytes() int {
	if p.MaxLogBytes > 0 {
		return p.MaxLogBytes
	}
	return DefaultMaxLogBytes
}

func (p *Parser) maxContextChars() int {
	if p.MaxContextChars > 0 {
		return p.MaxContextChars
	}
	return DefaultMaxContextChars
}

// tail keeps the last n bytes of s, starting on a line boundary when one
// exists in the kept region.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	if i := strings.IndexByte(cut, '\n'); i >= 0 && i < len(cut)-1 {
		return cut[i+1:]
	}
	return strings.ToValidUTF8(cut, "")
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
