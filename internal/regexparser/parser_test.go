package regexparser

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/tinyrange/rmatch/internal/regexir"
)

func mustParse(t *testing.T, src string) *regexir.Program {
	t.Helper()
	prog, err := Parse([]byte(src))
	assert.NilError(t, err)
	assert.NilError(t, regexir.Validate(prog))
	return prog
}

func TestParseEmptySourceYieldsAcceptOnly(t *testing.T) {
	prog := mustParse(t, "")
	assert.Equal(t, len(prog.Instrs), 1)
	assert.Equal(t, prog.Instrs[0].Kind, regexir.ACCEPT)
}

func TestParseLiteralSequence(t *testing.T) {
	prog := mustParse(t, "abc")
	assert.Equal(t, len(prog.Instrs), 4)
	for i, want := range []byte("abc") {
		assert.Equal(t, prog.Instrs[i].Kind, regexir.SINGLE)
		assert.Equal(t, byte(prog.Instrs[i].A), want)
	}
	assert.Equal(t, prog.Instrs[3].Kind, regexir.ACCEPT)
}

func TestParseDot(t *testing.T) {
	prog := mustParse(t, ".")
	assert.Equal(t, prog.Instrs[0].Kind, regexir.ANY)
}

func TestParseEscape(t *testing.T) {
	prog := mustParse(t, `\.`)
	assert.Equal(t, prog.Instrs[0].Kind, regexir.SINGLE)
	assert.Equal(t, byte(prog.Instrs[0].A), byte('.'))
}

func TestParseAlternation(t *testing.T) {
	prog := mustParse(t, "a|b")
	var kinds []regexir.Kind
	for _, instr := range prog.Instrs {
		kinds = append(kinds, instr.Kind)
	}
	assert.Equal(t, kinds[0], regexir.SPLIT)
}

func TestParseStarProducesBackwardSplit(t *testing.T) {
	prog := mustParse(t, "a*")
	found := false
	for i, instr := range prog.Instrs {
		if instr.Kind == regexir.SPLIT && i > 0 {
			found = true
		}
	}
	assert.Assert(t, found, "expected a SPLIT instruction for the star quantifier")
}

func TestParsePlusAndQuestion(t *testing.T) {
	for _, src := range []string{"a+", "a?"} {
		prog := mustParse(t, src)
		hasSplit := false
		for _, instr := range prog.Instrs {
			if instr.Kind == regexir.SPLIT || instr.Kind == regexir.SPLIT_ONE {
				hasSplit = true
			}
		}
		assert.Assert(t, hasSplit, "expected a branch instruction for %q", src)
	}
}

func TestParseGroup(t *testing.T) {
	prog := mustParse(t, "(ab)c")
	var letters []byte
	for _, instr := range prog.Instrs {
		if instr.Kind == regexir.SINGLE {
			letters = append(letters, byte(instr.A))
		}
	}
	assert.DeepEqual(t, letters, []byte("abc"))
}

func TestParseCharsetSingleAndRange(t *testing.T) {
	prog := mustParse(t, "[a-cx]")
	assert.Equal(t, prog.Instrs[0].Kind, regexir.CHARSET)
	assert.DeepEqual(t, prog.Instrs[0].Ranges, []regexir.Range{
		{Lo: 'a', Hi: 'c'},
		{Lo: 'x', Hi: 'x'},
	})
}

func TestParseCharsetMergesOverlappingRanges(t *testing.T) {
	prog := mustParse(t, "[a-fd-z]")
	assert.DeepEqual(t, prog.Instrs[0].Ranges, []regexir.Range{{Lo: 'a', Hi: 'z'}})
}

func TestParseCharsetMergesSharedBoundaryRanges(t *testing.T) {
	prog := mustParse(t, "[a-mm-z]")
	assert.DeepEqual(t, prog.Instrs[0].Ranges, []regexir.Range{{Lo: 'a', Hi: 'z'}})
}

func TestParseCharsetDoesNotMergeMerelyAdjacentRanges(t *testing.T) {
	prog := mustParse(t, "[a-mn-z]")
	assert.DeepEqual(t, prog.Instrs[0].Ranges, []regexir.Range{
		{Lo: 'a', Hi: 'm'},
		{Lo: 'n', Hi: 'z'},
	})
}

func TestParseCharsetKeepsDisjointRangesSeparate(t *testing.T) {
	prog := mustParse(t, "[0-57-9]")
	assert.DeepEqual(t, prog.Instrs[0].Ranges, []regexir.Range{
		{Lo: '0', Hi: '5'},
		{Lo: '7', Hi: '9'},
	})
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"unterminated group", "(ab", "unterminated group"},
		{"unterminated charset", "[abc", "unterminated character class"},
		{"empty charset", "[]", "empty character class"},
		{"inverted range", "[z-a]", "inverted or equal range bounds"},
		{"equal range bounds", "[a-a]", "inverted or equal range bounds"},
		{"trailing garbage", "a)", "unknown trailing input"},
		{"dangling escape", `a\`, "unexpected end of input"},
		{"unescaped metachar", "a+*", "unescaped metacharacter"},
		{"empty alternative", "a|", "empty expression"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			assert.ErrorContains(t, err, tc.wantErr)
			var syntaxErr *SyntaxError
			assert.Assert(t, castsTo(err, &syntaxErr), "expected a *SyntaxError, got %T", err)
		})
	}
}

func castsTo(err error, target **SyntaxError) bool {
	se, ok := err.(*SyntaxError)
	if ok {
		*target = se
	}
	return ok
}

func TestParseComplexAlternationAndGrouping(t *testing.T) {
	prog := mustParse(t, "(a|ab)c")
	assert.NilError(t, regexir.Validate(prog))
}
