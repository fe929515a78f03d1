package regexdump

import (
	"strings"
	"testing"

	"github.com/tinyrange/rmatch/internal/regexir"
)

func TestTextListsEachInstructionOnItsOwnLine(t *testing.T) {
	l1 := regexir.Label(0)
	prog := &regexir.Program{
		Instrs: []regexir.Instr{
			regexir.Split(l1, regexir.Label(1)),
			regexir.LabelDef(l1),
			regexir.Single('a'),
			regexir.Charset([]regexir.Range{{Lo: 'a', Hi: 'z'}}),
			regexir.Any(),
			regexir.StringRef(0),
			regexir.Jump(l1),
			regexir.LabelDef(regexir.Label(1)),
			regexir.Accept(),
		},
		Pool: [][]byte{[]byte("hello")},
	}

	out := Text(prog)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	wantSubstrings := []string{
		"SPLIT L0 L1",
		"L0:",
		"SINGLE 'a'",
		"CHARSET ['a'-'z']",
		"ANY",
		"STRING pool[0]",
		"JUMP L0",
		"L1:",
		"ACCEPT",
		`[0] "hello"`,
	}
	for _, want := range wantSubstrings {
		found := false
		for _, line := range lines {
			if strings.Contains(line, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("dump %q missing expected substring %q", out, want)
		}
	}
}

func TestFormatByteEscapesNonPrintable(t *testing.T) {
	if got := formatByte(0x00); got != "0x00" {
		t.Errorf("formatByte(0)=%q, want 0x00", got)
	}
	if got := formatByte('a'); got != "'a'" {
		t.Errorf("formatByte('a')=%q, want 'a'", got)
	}
	if got := formatByte('\''); got != "0x27" {
		t.Errorf("formatByte(')=%q, want 0x27", got)
	}
}
