package main

import (
	"fmt"
	"io"

	"echo/internal/spec"
)

func runSchema(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(errOut, "Usage: echo schema")
		return 1
	}
	payload, err := spec.SchemaJSON()
	if err != nil {
		fmt.Fprintf(errOut, "render schema: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, string(payload))
	return 0
}
