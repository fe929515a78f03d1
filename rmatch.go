//go:build linux && amd64

// Package rmatch compiles a regex source string into native x86-64 machine
// code and runs that code against candidate input.
package rmatch

import (
	"fmt"
	"unsafe"

	"github.com/tinyrange/rmatch/internal/asm/amd64"
	"github.com/tinyrange/rmatch/internal/regexcode"
	"github.com/tinyrange/rmatch/internal/regexdump"
	"github.com/tinyrange/rmatch/internal/regexir"
	"github.com/tinyrange/rmatch/internal/regexopt"
	"github.com/tinyrange/rmatch/internal/regexparser"
)

// CompileError reports why compilation failed and the zero-based byte
// offset into the source at which the problem was found.
type CompileError struct {
	Offset int
	Msg    string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rmatch: compile error at byte %d: %s", e.Offset, e.Msg)
}

// Program is a compiled regex: an emitted, executable function plus the IR
// that produced it (kept around only so Dump can describe it).
type Program struct {
	ir      *regexir.Program
	fn      amd64.Func
	release func()
}

// Compile parses, optimizes, and emits native code for source. The
// optimizer always runs; use CompileUnoptimized to bypass it (used by the
// optimizer-equivalence tests).
func Compile(source []byte) (*Program, error) {
	return compile(source, true)
}

// CompileUnoptimized skips the optimizer passes, emitting code directly
// from the parser's IR.
func CompileUnoptimized(source []byte) (*Program, error) {
	return compile(source, false)
}

func compile(source []byte, optimize bool) (*Program, error) {
	prog, err := regexparser.Parse(source)
	if err != nil {
		if se, ok := err.(*regexparser.SyntaxError); ok {
			return nil, &CompileError{Offset: se.Offset, Msg: se.Msg}
		}
		return nil, err
	}

	if optimize {
		regexopt.Optimize(prog)
	}

	fragment, err := regexcode.Generate(prog)
	if err != nil {
		return nil, &CompileError{Offset: len(source), Msg: err.Error()}
	}

	fn, release, err := amd64.Compile(fragment)
	if err != nil {
		return nil, fmt.Errorf("rmatch: emit native code: %w", err)
	}

	return &Program{ir: prog, fn: fn, release: release}, nil
}

// Run invokes the compiled function against input. The engine matches from
// position 0 only; to emulate search-anywhere semantics the caller should
// compile the pattern with a ".*" preface.
func (p *Program) Run(input []byte) bool {
	buf := make([]byte, len(input)+1)
	copy(buf, input)
	// buf's last byte is already zero, satisfying the NUL-terminated
	// input contract.
	result := p.fn.Call(unsafe.Pointer(&buf[0]))
	return result != 0
}

// Dump returns a human-readable listing of the compiled IR.
func (p *Program) Dump() string {
	return regexdump.Text(p.ir)
}

// Bytes returns the raw machine code emitted for the program, as mapped
// into the executable region Run calls into.
func (p *Program) Bytes() []byte {
	return p.fn.Program().Bytes()
}

// Close releases the executable memory backing the compiled function. Any
// outstanding calls to Run after Close are invalid.
func (p *Program) Close() {
	if p.release != nil {
		p.release()
		p.release = nil
	}
}
