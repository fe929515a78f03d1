package regexir

import "fmt"

// Validate checks the well-formedness invariants every Program must satisfy
// regardless of which stage produced it: every branch operand resolves to
// exactly one LABEL definition, labels are unique, CHARSET ranges are sorted
// and disjoint, and the stream contains at least one ACCEPT. Where that
// ACCEPT sits in the stream, and whether it is reachable, is not checked.
func Validate(p *Program) error {
	defined := make(map[Label]int)
	for i, instr := range p.Instrs {
		if instr.Kind != LABEL {
			continue
		}
		l := Label(instr.A)
		if prev, ok := defined[l]; ok {
			return fmt.Errorf("label %d defined twice, at %d and %d", l, prev, i)
		}
		defined[l] = i
	}

	checkLabel := func(pos int, l Label) error {
		if _, ok := defined[l]; !ok {
			return fmt.Errorf("instruction %d references undefined label %d", pos, l)
		}
		return nil
	}

	sawAccept := false
	for i, instr := range p.Instrs {
		switch instr.Kind {
		case SPLIT:
			if err := checkLabel(i, Label(instr.A)); err != nil {
				return err
			}
			if err := checkLabel(i, Label(instr.B)); err != nil {
				return err
			}
		case SPLIT_ONE, JUMP:
			if err := checkLabel(i, Label(instr.A)); err != nil {
				return err
			}
		case STRING:
			if int(instr.A) >= len(p.Pool) {
				return fmt.Errorf("instruction %d references undefined pool entry %d", i, instr.A)
			}
		case CHARSET:
			if err := validateRanges(instr.Ranges); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		case ACCEPT:
			sawAccept = true
		}
	}

	if !sawAccept {
		return fmt.Errorf("program has no ACCEPT instruction")
	}
	return nil
}

func validateRanges(ranges []Range) error {
	for i, r := range ranges {
		if r.Lo > r.Hi {
			return fmt.Errorf("range %d has lo %d > hi %d", i, r.Lo, r.Hi)
		}
		if i > 0 {
			prev := ranges[i-1]
			if r.Lo < prev.Lo {
				return fmt.Errorf("ranges not sorted by lo at index %d", i)
			}
			if r.Lo <= prev.Hi {
				return fmt.Errorf("ranges %d and %d overlap or touch unmerged", i-1, i)
			}
		}
	}
	return nil
}
