package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"echo/internal/logging"
	"echo/internal/spec"
)

// runValidate loads every file through the spec loader and reports each
// result. It exits 1 when any file fails.
func runValidate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("echo validate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintln(errOut, "Usage: echo validate FILE...")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 1
	}

	loader := spec.NewLoader(logging.Discard(), nil)
	failed := 0
	for _, path := range fs.Args() {
		document, err := loader.Load(path)
		if err != nil {
			failed++
			fmt.Fprintf(errOut, "%s: invalid\n", path)
			var validationErr *spec.ValidationError
			if errors.As(err, &validationErr) {
				for _, problem := range validationErr.Problems {
					fmt.Fprintf(errOut, "  - %s\n", problem)
				}
				continue
			}
			fmt.Fprintf(errOut, "  - %v\n", err)
			continue
		}
		fmt.Fprintf(out, "%s: ok (%s)\n", path, document.Spec.Capability)
	}
	if failed > 0 {
		return 1
	}
	return 0
}
