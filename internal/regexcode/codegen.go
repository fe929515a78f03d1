// Package regexcode lowers an optimized regexir.Program to x86-64 machine
// code using internal/asm/amd64, implementing the backtracking executor
// whose thread stack rides on the native call stack.
package regexcode

import (
	"fmt"

	"github.com/tinyrange/rmatch/internal/asm"
	"github.com/tinyrange/rmatch/internal/asm/amd64"
	"github.com/tinyrange/rmatch/internal/regexir"
)

// Register roles. cursorID doubles as the function's sole argument register
// under the System V convention the trampoline in asm/amd64/exec.go uses,
// so the prologue never has to move it.
const (
	cursorID  = amd64.RDI
	scratchA  = amd64.RSI
	scratchB  = amd64.RDX
	accID     = amd64.R9
	flagID    = amd64.R10
	resumeID  = amd64.R11
	baseID    = amd64.RBX
	resultID  = amd64.RAX
)

const (
	labelRun         asm.Label = "run"
	labelMatchFail    asm.Label = "match_fail"
	labelMatchReturn asm.Label = "match_return"
	labelThreadFail  asm.Label = "thread_fail"
)

func userLabel(l regexir.Label) asm.Label {
	return asm.Label(fmt.Sprintf("L%d", uint32(l)))
}

// Generate lowers prog into a single Fragment implementing
// fn(const_byte_ptr) -> bool.
func Generate(prog *regexir.Program) (asm.Fragment, error) {
	if err := regexir.Validate(prog); err != nil {
		return nil, fmt.Errorf("program fails well-formedness check: %w", err)
	}

	body := asm.Group{asm.MarkLabel(labelRun)}
	for i, instr := range prog.Instrs {
		frag, err := lowerInstr(instr, prog)
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, instr.Kind, err)
		}
		body = append(body, frag)
	}

	prologue := asm.Group{
		amd64.PushReg(amd64.Reg64(baseID)),
		amd64.Move(baseID, amd64.RSP),
		amd64.Jump(labelRun),
	}

	epilogue := asm.Group{
		asm.MarkLabel(labelMatchFail),
		amd64.MovImmediate(amd64.Reg64(resultID), 0),
		asm.MarkLabel(labelMatchReturn),
		amd64.Move(amd64.RSP, baseID),
		amd64.PopReg(amd64.Reg64(baseID)),
		amd64.Ret(),

		asm.MarkLabel(labelThreadFail),
		amd64.CmpRegReg(amd64.Reg64(amd64.RSP), amd64.Reg64(baseID)),
		amd64.JumpIfEqual(labelMatchFail),
		amd64.PopReg(amd64.Reg64(cursorID)),
		amd64.PopReg(amd64.Reg64(resumeID)),
		amd64.JumpRaw(resumeID),
	}

	return asm.Group{prologue, body, epilogue}, nil
}

func lowerInstr(instr regexir.Instr, prog *regexir.Program) (asm.Fragment, error) {
	switch instr.Kind {
	case regexir.LABEL:
		return asm.MarkLabel(userLabel(regexir.Label(instr.A))), nil

	case regexir.JUMP:
		return amd64.Jump(userLabel(regexir.Label(instr.A))), nil

	case regexir.ACCEPT:
		return asm.Group{
			amd64.MovImmediate(amd64.Reg64(resultID), 1),
			amd64.Jump(labelMatchReturn),
		}, nil

	case regexir.SPLIT:
		pri := userLabel(regexir.Label(instr.A))
		alt := userLabel(regexir.Label(instr.B))
		return asm.Group{
			amd64.LeaLabel(amd64.Reg64(resumeID), alt),
			amd64.PushReg(amd64.Reg64(resumeID)),
			amd64.PushReg(amd64.Reg64(cursorID)),
			amd64.Jump(pri),
		}, nil

	case regexir.SPLIT_ONE:
		alt := userLabel(regexir.Label(instr.A))
		return asm.Group{
			amd64.LeaLabel(amd64.Reg64(resumeID), alt),
			amd64.PushReg(amd64.Reg64(resumeID)),
			amd64.PushReg(amd64.Reg64(cursorID)),
		}, nil

	case regexir.SINGLE:
		return asm.Group{
			amd64.MovZX8(amd64.Reg64(scratchA), amd64.Mem(amd64.Reg64(cursorID))),
			amd64.CmpRegImm(amd64.Reg64(scratchA), int32(byte(instr.A))),
			amd64.JumpIfNotEqual(labelThreadFail),
			amd64.AddRegImm(amd64.Reg64(cursorID), 1),
		}, nil

	case regexir.ANY:
		return asm.Group{
			amd64.MovZX8(amd64.Reg64(scratchA), amd64.Mem(amd64.Reg64(cursorID))),
			amd64.CmpRegImm(amd64.Reg64(scratchA), 0),
			amd64.JumpIfEqual(labelThreadFail),
			amd64.AddRegImm(amd64.Reg64(cursorID), 1),
		}, nil

	case regexir.CHARSET:
		return lowerCharset(instr.Ranges), nil

	case regexir.STRING:
		if int(instr.A) >= len(prog.Pool) {
			return nil, fmt.Errorf("references undefined string pool entry %d", instr.A)
		}
		return lowerString(prog.Pool[instr.A]), nil

	default:
		return nil, fmt.Errorf("unknown instruction kind %v", instr.Kind)
	}
}

// lowerCharset implements the branchless-accumulator scheme: each range
// contributes a 0/1 flag via SETcc, ORed into an accumulator, so the whole
// range set is tested without a branch per range.
func lowerCharset(ranges []regexir.Range) asm.Fragment {
	group := asm.Group{
		amd64.MovZX8(amd64.Reg64(scratchA), amd64.Mem(amd64.Reg64(cursorID))),
		amd64.CmpRegImm(amd64.Reg64(scratchA), 0),
		amd64.JumpIfEqual(labelThreadFail),
		amd64.XorRegReg(amd64.Reg8(accID), amd64.Reg8(accID)),
	}

	for _, r := range ranges {
		if r.Lo == r.Hi {
			group = append(group,
				amd64.CmpRegImm(amd64.Reg64(scratchA), int32(r.Lo)),
				amd64.SetEqual(amd64.Reg8(flagID)),
				amd64.OrRegReg(amd64.Reg8(accID), amd64.Reg8(flagID)),
			)
			continue
		}
		group = append(group,
			amd64.MovReg(amd64.Reg64(scratchB), amd64.Reg64(scratchA)),
			amd64.AddRegImm(amd64.Reg64(scratchB), -int32(r.Lo)),
			amd64.CmpRegImm(amd64.Reg64(scratchB), int32(r.Hi-r.Lo)),
			amd64.SetBelowOrEqual(amd64.Reg8(flagID)),
			amd64.OrRegReg(amd64.Reg8(accID), amd64.Reg8(flagID)),
		)
	}

	group = append(group,
		amd64.CmpRegImm(amd64.Reg8(accID), 0),
		amd64.JumpIfEqual(labelThreadFail),
		amd64.AddRegImm(amd64.Reg64(cursorID), 1),
	)
	return group
}

var chunkSizes = []int{8, 4, 2, 1}

// lowerString peels the literal into 8/4/2/1-byte chunks and compares each
// against [cursor], advancing cursor by the matched chunk size each time.
func lowerString(literal []byte) asm.Fragment {
	var group asm.Group

	offset := 0
	remaining := len(literal)
	for _, size := range chunkSizes {
		for remaining >= size {
			chunk := literal[offset : offset+size]
			value := int64(littleEndianValue(chunk))
			memReg := regForSize(scratchA, size)
			litReg := regForSize(scratchB, size)

			group = append(group,
				amd64.MovFromMemory(memReg, amd64.Mem(amd64.Reg64(cursorID))),
				amd64.MovImmediate(litReg, value),
				amd64.CmpRegReg(memReg, litReg),
				amd64.JumpIfNotEqual(labelThreadFail),
				amd64.AddRegImm(amd64.Reg64(cursorID), int32(size)),
			)

			offset += size
			remaining -= size
		}
	}
	return group
}

func regForSize(id asm.Variable, size int) amd64.Reg {
	switch size {
	case 8:
		return amd64.Reg64(id)
	case 4:
		return amd64.Reg32(id)
	case 2:
		return amd64.Reg16(id)
	case 1:
		return amd64.Reg8(id)
	default:
		panic(fmt.Sprintf("unsupported chunk size %d", size))
	}
}

func littleEndianValue(b []byte) uint64 {
	var v uint64
	for i, by := range b {
		v |= uint64(by) << (8 * i)
	}
	return v
}
