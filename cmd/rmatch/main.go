//go:build linux && amd64

// Command rmatch compiles a regex and runs it against an input string,
// the same two operations the original hardcoded driver performed, now
// taken from flags instead of being baked into main.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/rmatch"
)

func main() {
	var (
		pattern = flag.String("regex", "", "regex source to compile")
		input   = flag.String("input", "", "input string to match against")
		dump    = flag.Bool("dump", false, "print the compiled IR before matching")
		bytes   = flag.Bool("bytes", false, "print the emitted machine code bytes before matching")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *pattern == "" {
		logger.Error("missing -regex")
		os.Exit(2)
	}

	prog, err := rmatch.Compile([]byte(*pattern))
	if err != nil {
		logger.Error("compile failed", "error", err)
		os.Exit(1)
	}
	defer prog.Close()

	if *dump {
		fmt.Print(prog.Dump())
	}

	if *bytes {
		os.Stdout.Write(prog.Bytes())
	}

	matched := prog.Run([]byte(*input))
	logger.Info("match result", "regex", *pattern, "input", *input, "matched", matched)

	if !matched {
		os.Exit(1)
	}
}
