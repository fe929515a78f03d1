// Package regexopt implements the two peephole passes that rewrite a
// regexir.Program in place before code generation: split_jump_fusion
// collapses a branch whose primary arm immediately falls through to its own
// target, and single_fusion coalesces runs of single-byte matches into bulk
// string-literal matches.
package regexopt

import "github.com/tinyrange/rmatch/internal/regexir"

// Optimize runs both passes, in the order the code generator expects:
// split_jump_fusion first, then single_fusion over its output.
func Optimize(p *regexir.Program) {
	splitJumpFusion(p)
	singleFusion(p)
}

// splitJumpFusion rewrites `SPLIT L_a L_b` into `SPLIT_ONE L_b` whenever the
// very next instruction is `LABEL L_a` — the primary branch is already a
// fall-through, so the operand naming it is redundant. The LABEL itself is
// left in place; other instructions may still jump to it.
func splitJumpFusion(p *regexir.Program) {
	instrs := p.Instrs
	out := make([]regexir.Instr, 0, len(instrs))
	for i := 0; i < len(instrs); i++ {
		instr := instrs[i]
		if instr.Kind == regexir.SPLIT && i+1 < len(instrs) {
			next := instrs[i+1]
			if next.Kind == regexir.LABEL && next.A == instr.A {
				out = append(out, regexir.SplitOne(regexir.Label(instr.B)))
				continue
			}
		}
		out = append(out, instr)
	}
	p.Instrs = out
}

// singleFusion replaces maximal runs of two or more consecutive SINGLE
// instructions with a single STRING reference into the program's string
// pool. Runs of length one are left untouched.
func singleFusion(p *regexir.Program) {
	instrs := p.Instrs
	out := make([]regexir.Instr, 0, len(instrs))

	i := 0
	for i < len(instrs) {
		if instrs[i].Kind != regexir.SINGLE {
			out = append(out, instrs[i])
			i++
			continue
		}

		run := i
		var literal []byte
		for run < len(instrs) && instrs[run].Kind == regexir.SINGLE {
			literal = append(literal, byte(instrs[run].A))
			run++
		}

		if len(literal) >= 2 {
			idx := p.AddString(literal)
			out = append(out, regexir.StringRef(idx))
		} else {
			out = append(out, instrs[i])
		}
		i = run
	}

	p.Instrs = out
}
