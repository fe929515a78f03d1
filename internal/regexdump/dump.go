// Package regexdump renders a regexir.Program as a human-readable listing
// for debugging; it sits off the hot path entirely.
package regexdump

import (
	"fmt"
	"io"
	"strings"

	"github.com/tinyrange/rmatch/internal/regexir"
)

// Dump writes a human-readable listing of prog to w: one line per
// instruction, with LABEL definitions left-aligned and everything else
// indented beneath them.
func Dump(w io.Writer, prog *regexir.Program) error {
	for i, instr := range prog.Instrs {
		line, err := formatInstr(instr)
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	if len(prog.Pool) > 0 {
		if _, err := io.WriteString(w, "pool:\n"); err != nil {
			return err
		}
		for i, s := range prog.Pool {
			if _, err := fmt.Fprintf(w, "  [%d] %q\n", i, s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Text is a convenience wrapper returning the listing as a string.
func Text(prog *regexir.Program) string {
	var b strings.Builder
	_ = Dump(&b, prog)
	return b.String()
}

func formatInstr(instr regexir.Instr) (string, error) {
	switch instr.Kind {
	case regexir.LABEL:
		return fmt.Sprintf("L%d:", instr.A), nil
	case regexir.SPLIT:
		return fmt.Sprintf("\tSPLIT L%d L%d", instr.A, instr.B), nil
	case regexir.SPLIT_ONE:
		return fmt.Sprintf("\tSPLIT_ONE L%d", instr.A), nil
	case regexir.SINGLE:
		return fmt.Sprintf("\tSINGLE %s", formatByte(byte(instr.A))), nil
	case regexir.CHARSET:
		parts := make([]string, len(instr.Ranges))
		for i, r := range instr.Ranges {
			if r.Lo == r.Hi {
				parts[i] = formatByte(r.Lo)
			} else {
				parts[i] = fmt.Sprintf("%s-%s", formatByte(r.Lo), formatByte(r.Hi))
			}
		}
		return fmt.Sprintf("\tCHARSET [%s]", strings.Join(parts, ",")), nil
	case regexir.ANY:
		return "\tANY", nil
	case regexir.STRING:
		return fmt.Sprintf("\tSTRING pool[%d]", instr.A), nil
	case regexir.JUMP:
		return fmt.Sprintf("\tJUMP L%d", instr.A), nil
	case regexir.ACCEPT:
		return "\tACCEPT", nil
	default:
		return "", fmt.Errorf("unknown instruction kind %v", instr.Kind)
	}
}

func formatByte(b byte) string {
	if b >= 0x20 && b < 0x7f && b != '\'' && b != '\\' {
		return fmt.Sprintf("'%c'", b)
	}
	return fmt.Sprintf("0x%02x", b)
}
