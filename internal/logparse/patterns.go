package logparse

import "regexp"

// GitHub Actions prefixes every line with an RFC 3339 timestamp, e.g.
// 2024-01-15T10:30:00.1234567Z Run pytest
var timestampRe = regexp.MustCompile(`(?m)^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z[ \t]*`)

// Workflow command markers.
var (
	ghErrorRe    = regexp.MustCompile(`(?m)##\[error\](.+)$`)
	ghGroupRe    = regexp.MustCompile(`(?m)##\[group\](.+)$`)
	failedStepRe = regexp.MustCompile(`(?s)##\[group\]Run (.+?)(?:\n|##\[endgroup\])`)
)

var exitCodeRe = regexp.MustCompile(`(?i)(?:Process completed with exit code|exit code)[:\s]+(\d+)`)

// Python tracebacks.
var (
	tracebackRe  = regexp.MustCompile(`Traceback \(most recent call last\):`)
	stackFrameRe = regexp.MustCompile(`File ["']([^"']+)["'],\s*line (\d+)(?:,\s*in (\w+))?`)
	exceptionRe  = regexp.MustCompile(`(?m)^(` +
		`ModuleNotFoundError|ImportError|SyntaxError|IndentationError|TypeError|` +
		`ValueError|KeyError|AttributeError|NameError|FileNotFoundError|RuntimeError|` +
		`ZeroDivisionError|IndexError|AssertionError|Exception|OSError|IOError|` +
		`PermissionError|ConnectionError|TimeoutError` +
		`)[ \t]*:[ \t]*(\S.*)$`)
)

// Node / npm.
var (
	npmErrorRe      = regexp.MustCompile(`(?m)^npm ERR!\s*(.+)$`)
	missingModuleRe = regexp.MustCompile(`(?i)Cannot find module ['"]([^'"]+)['"]`)
)

var genericErrorRe = regexp.MustCompile(`(?m)^(?:Error|ERROR|error):\s*(.+)$`)

// Test runners.
var (
	pytestFailedRe   = regexp.MustCompile(`(?m)^FAILED\s+(\S+)`)
	assertionErrorRe = regexp.MustCompile(`(?m)AssertionError:\s*(.+)$`)
)

// exitCodeNoise is the runner's own trailer, reported for every failing step.
const exitCodeNoise = "Process completed with exit code"
