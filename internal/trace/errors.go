package trace

import "fmt"

// MalformedTraceError aborts a run before anything is dispatched.
type MalformedTraceError struct {
	Line   int
	Reason string
}

func (e *MalformedTraceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed trace at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed trace: %s", e.Reason)
}
