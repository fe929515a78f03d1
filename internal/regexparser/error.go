package regexparser

import "fmt"

// SyntaxError reports a parse failure together with the zero-based byte
// offset into the source at which it was detected.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("regex syntax error at byte %d: %s", e.Offset, e.Msg)
}
