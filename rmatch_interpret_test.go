//go:build linux && amd64

package rmatch

import "github.com/tinyrange/rmatch/internal/regexir"

// interpretIR walks prog directly with an explicit backtrack stack of
// (pc, cursor) frames, mirroring the semantics internal/regexcode compiles
// to native code but never touching internal/asm. It exists so the
// property tests have a reference that cannot share a codegen bug with the
// JIT path.
func interpretIR(prog *regexir.Program, input []byte) bool {
	positions := prog.LabelPositions()

	type frame struct {
		pc     int
		cursor int
	}
	var stack []frame

	byteAt := func(cursor int) byte {
		if cursor < 0 || cursor >= len(input) {
			return 0
		}
		return input[cursor]
	}

	pc, cursor := 0, 0
	for {
		if pc >= len(prog.Instrs) {
			if len(stack) == 0 {
				return false
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pc, cursor = top.pc, top.cursor
			continue
		}

		instr := prog.Instrs[pc]
		fail := false

		switch instr.Kind {
		case regexir.LABEL:
			pc++
		case regexir.JUMP:
			pc = positions[regexir.Label(instr.A)]
		case regexir.ACCEPT:
			return true
		case regexir.SPLIT:
			stack = append(stack, frame{pc: positions[regexir.Label(instr.B)], cursor: cursor})
			pc = positions[regexir.Label(instr.A)]
		case regexir.SPLIT_ONE:
			stack = append(stack, frame{pc: positions[regexir.Label(instr.A)], cursor: cursor})
			pc++
		case regexir.SINGLE:
			if byteAt(cursor) != 0 && byteAt(cursor) == byte(instr.A) {
				cursor++
				pc++
			} else {
				fail = true
			}
		case regexir.ANY:
			if byteAt(cursor) != 0 {
				cursor++
				pc++
			} else {
				fail = true
			}
		case regexir.CHARSET:
			b := byteAt(cursor)
			if b != 0 && charsetContains(instr.Ranges, b) {
				cursor++
				pc++
			} else {
				fail = true
			}
		case regexir.STRING:
			literal := prog.Pool[instr.A]
			matched := true
			for i, want := range literal {
				if byteAt(cursor+i) != want {
					matched = false
					break
				}
			}
			if matched {
				cursor += len(literal)
				pc++
			} else {
				fail = true
			}
		default:
			fail = true
		}

		if fail {
			if len(stack) == 0 {
				return false
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pc, cursor = top.pc, top.cursor
		}
	}
}

func charsetContains(ranges []regexir.Range, b byte) bool {
	for _, r := range ranges {
		if r.Contains(b) {
			return true
		}
	}
	return false
}
