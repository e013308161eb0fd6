package agent

// malformedResponseError signals a completion that did not yield a usable
// action proposal. Counted against the run retry budget.
type malformedResponseError struct{ msg string }

func (e malformedResponseError) Error() string { return "malformed agent response: " + e.msg }

// ErrMalformedResponse constructs a malformedResponseError.
func ErrMalformedResponse(msg string) error { return malformedResponseError{msg: msg} }

// IsMalformedResponse reports whether err indicates an unusable proposal.
func IsMalformedResponse(err error) bool {
	_, ok := err.(malformedResponseError)
	return ok
}

// pathViolationError signals a tool path argument that resolves outside the
// sandbox root. The tool is never executed.
type pathViolationError struct{ path string }

func (e pathViolationError) Error() string {
	return "path escapes the sandbox root: " + e.path
}

// ErrPathViolation constructs a pathViolationError.
func ErrPathViolation(path string) error { return pathViolationError{path: path} }

// IsPathViolation reports whether err indicates a confined-path escape.
func IsPathViolation(err error) bool {
	_, ok := err.(pathViolationError)
	return ok
}

// toolError signals a failed tool execution. Non-fatal failures are recorded
// as step results and the run continues; fatal ones terminate the run.
type toolError struct {
	msg   string
	fatal bool
}

func (e toolError) Error() string { return e.msg }

// ErrTool constructs a toolError.
func ErrTool(msg string, fatal bool) error { return toolError{msg: msg, fatal: fatal} }

// IsFatalToolError reports whether err is a tool failure the run cannot
// recover from.
func IsFatalToolError(err error) bool {
	e, ok := err.(toolError)
	return ok && e.fatal
}
