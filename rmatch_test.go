//go:build linux && amd64

package rmatch

import (
	"math/rand"
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/tinyrange/rmatch/internal/regexparser"
)

func TestCompileAndRunScenarios(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		input   string
		want    bool
	}{
		{"literal match", "hello", "hello", true},
		{"literal mismatch", "hello", "hellp", false},
		{"dot matches any byte", "a.c", "abc", true},
		{"dot rejects empty", "a.c", "ac", false},
		{"star zero reps", "ab*c", "ac", true},
		{"star many reps", "ab*c", "abbbbc", true},
		{"plus requires one", "ab+c", "ac", false},
		{"question mark optional", "ab?c", "ac", true},
		{"alternation left", "cat|dog", "cat", true},
		{"alternation right", "cat|dog", "dog", true},
		{"charset range", "[a-z]+", "abcxyz", true},
		{"charset excludes", "[a-z]+", "ABC", false},
		{"backtracking star then literal", "a*a", "aaa", true},
		{"ambiguous alternation with overlap", "(a|ab)c", "abc", true},
		{"ambiguous alternation shorter branch", "(a|ab)c", "ac", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := Compile([]byte(tc.pattern))
			assert.NilError(t, err)
			defer prog.Close()

			got := prog.Run([]byte(tc.input))
			assert.Equal(t, got, tc.want)
		})
	}
}

func TestCompileReportsSyntaxErrorOffset(t *testing.T) {
	_, err := Compile([]byte("a(b"))
	assert.ErrorContains(t, err, "compile error at byte")
	assert.ErrorContains(t, err, "unterminated group")

	var compileErr *CompileError
	ok := false
	if ce, isCE := err.(*CompileError); isCE {
		ok = true
		compileErr = ce
	}
	assert.Assert(t, ok, "expected a *CompileError")
	assert.Equal(t, compileErr.Offset, 3)
}

func TestCompileUnoptimizedMatchesOptimizedResults(t *testing.T) {
	patterns := []string{"abc", "a*b*c*", "(cat|dog)s?", "[0-9]+x", "a.b.c"}
	inputs := []string{"abc", "aaabbbccc", "dogs", "123x", "aXbYc", "nope"}

	for _, pattern := range patterns {
		opt, err := Compile([]byte(pattern))
		assert.NilError(t, err)
		defer opt.Close()

		unopt, err := CompileUnoptimized([]byte(pattern))
		assert.NilError(t, err)
		defer unopt.Close()

		for _, input := range inputs {
			gotOpt := opt.Run([]byte(input))
			gotUnopt := unopt.Run([]byte(input))
			assert.Equal(t, gotOpt, gotUnopt, "pattern %q input %q: optimized=%v unoptimized=%v", pattern, input, gotOpt, gotUnopt)
		}
	}
}

func TestDumpContainsProgramStructure(t *testing.T) {
	prog, err := Compile([]byte("a|b"))
	assert.NilError(t, err)
	defer prog.Close()

	out := prog.Dump()
	assert.Assert(t, len(out) > 0, "expected non-empty dump")
}

func TestBytesReturnsNonEmptyMachineCode(t *testing.T) {
	prog, err := Compile([]byte("abc"))
	assert.NilError(t, err)
	defer prog.Close()

	assert.Assert(t, len(prog.Bytes()) > 0, "expected compiled machine code")
}

// referenceMatch parses pattern and walks the resulting IR with
// interpretIR, a plain Go backtracking interpreter that never touches
// internal/asm. Comparing it against Compile's native output is what
// actually exercises the native code generator against an independent
// implementation, unlike comparing Compile against CompileUnoptimized,
// which only checks the optimizer against itself.
func referenceMatch(t *testing.T, pattern, input string) bool {
	t.Helper()
	prog, err := regexparser.Parse([]byte(pattern))
	assert.NilError(t, err)
	return interpretIR(prog, []byte(input))
}

func TestPropertyRandomLiteralsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	alphabet := "abc"

	randomString := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(b)
	}

	for i := 0; i < 50; i++ {
		lit := randomString(1 + rng.Intn(12))
		other := randomString(1 + rng.Intn(12))

		prog, err := Compile([]byte(lit))
		assert.NilError(t, err)

		assert.Equal(t, prog.Run([]byte(lit)), true)
		// Matching is anchored at position 0 only, so any input that starts
		// with lit matches as well.
		if other != lit {
			assert.Equal(t, prog.Run([]byte(other)), strings.HasPrefix(other, lit))
		}
		prog.Close()
	}
}

func TestPropertyOptimizerAgreesWithUnoptimizedOnRandomPatterns(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	fragments := []string{"a", "b", "ab", "a*", "b*", "a+", "b?", "(a|b)", "[ab]", "."}

	randomPattern := func() string {
		n := 1 + rng.Intn(4)
		var b []byte
		for i := 0; i < n; i++ {
			b = append(b, fragments[rng.Intn(len(fragments))]...)
		}
		return string(b)
	}

	inputs := []string{"", "a", "b", "ab", "ba", "aab", "bba", "aaaa"}

	for i := 0; i < 30; i++ {
		pattern := randomPattern()

		opt, err := Compile([]byte(pattern))
		if err != nil {
			continue
		}
		unopt, err := CompileUnoptimized([]byte(pattern))
		if err != nil {
			opt.Close()
			continue
		}

		for _, input := range inputs {
			gotOpt := opt.Run([]byte(input))
			gotUnopt := unopt.Run([]byte(input))
			if gotOpt != gotUnopt {
				t.Fatalf("pattern %q input %q: optimized=%v unoptimized=%v", pattern, input, gotOpt, gotUnopt)
			}
		}
		opt.Close()
		unopt.Close()
	}
}

// TestPropertyNativeCodeAgreesWithInterpreter checks the actual JIT-compiled
// matcher against interpretIR, a plain Go implementation that walks the IR
// on its own backtrack stack and never calls into internal/asm. Unlike
// TestPropertyOptimizerAgreesWithUnoptimizedOnRandomPatterns, which only
// compares two runs of the same code generator, this is the test that
// would catch a bug in regexcode's lowering or in the hand-written
// assembly itself.
func TestPropertyNativeCodeAgreesWithInterpreter(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	fragments := []string{"a", "b", "c", "ab", "a*", "b*", "a+", "b?", "(a|b)", "(ab|a)", "[ab]", "[a-c]", "."}

	randomPattern := func() string {
		n := 1 + rng.Intn(4)
		var b []byte
		for i := 0; i < n; i++ {
			b = append(b, fragments[rng.Intn(len(fragments))]...)
		}
		return string(b)
	}

	inputs := []string{"", "a", "b", "c", "ab", "ba", "aab", "bba", "aaaa", "abc", "abab"}

	for i := 0; i < 40; i++ {
		pattern := randomPattern()

		compiled, err := Compile([]byte(pattern))
		assert.NilError(t, err, "pattern %q", pattern)

		for _, input := range inputs {
			want := referenceMatch(t, pattern, input)
			got := compiled.Run([]byte(input))
			if got != want {
				t.Fatalf("pattern %q input %q: native=%v interpreter=%v", pattern, input, got, want)
			}
		}
		compiled.Close()
	}
}
