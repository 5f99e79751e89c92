package logparse

// Category is the coarse taxonomy a parsed error is sorted into.
type Category string

const (
	CategoryDependency    Category = "dependency"
	CategorySyntax        Category = "syntax"
	CategoryTestFailure   Category = "test_failure"
	CategoryConfiguration Category = "configuration"
	CategoryBuild         Category = "build"
	CategoryRuntime       Category = "runtime"
	CategoryNetwork       Category = "network"
	CategoryPermission    Category = "permission"
	CategoryTimeout       Category = "timeout"
	CategoryUnknown       Category = "unknown"
)

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	return []Category{
		CategoryDependency,
		CategorySyntax,
		CategoryTestFailure,
		CategoryConfiguration,
		CategoryBuild,
		CategoryRuntime,
		CategoryNetwork,
		CategoryPermission,
		CategoryTimeout,
		CategoryUnknown,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range AllCategories() {
		if c == k {
			return true
		}
	}
	return false
}

// StackFrame is one "File ..., line N, in fn" entry of a traceback.
// Zero values mean the field was not present in the log.
type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function,omitempty"`
	Code     string `json:"code,omitempty"`
}

// ParsedError is a single error detected in a build log.
type ParsedError struct {
	ErrorType     string       `json:"error_type"`
	ErrorMessage  string       `json:"error_message"`
	Category      Category     `json:"category"`
	FailedStep    string       `json:"failed_step,omitempty"`
	ExitCode      *int         `json:"exit_code,omitempty"`
	StackTrace    []string     `json:"stack_trace,omitempty"`
	StackFrames   []StackFrame `json:"stack_frames,omitempty"`
	RelevantLines []string     `json:"relevant_lines,omitempty"`
	RawErrorBlock string       `json:"raw_error_block,omitempty"`
}

// Result is the outcome of one parse invocation.
type Result struct {
	Success    bool          `json:"success"`
	Errors     []ParsedError `json:"errors"`
	Primary    *ParsedError  `json:"primary_error,omitempty"`
	TotalLines int           `json:"total_lines"`
	ErrorCount int           `json:"error_count"`
	Summary    string        `json:"summary"`
}

// NoErrorSummary is the summary reported when nothing recognizable was found.
const NoErrorSummary = "No specific error identified (check raw logs)"
