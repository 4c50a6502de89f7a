package main

import (
	"io"
	"os"
)

type command interface {
	Run(args []string) int
}

type commandDeps struct {
	Stdout      io.Writer
	Stderr      io.Writer
	RunServer   func(args []string) int
	RunValidate func(args []string, out io.Writer, errOut io.Writer) int
	RunSchema   func(args []string, out io.Writer, errOut io.Writer) int
	RunHash     func(args []string, out io.Writer, errOut io.Writer) int
}

func defaultCommandDeps() commandDeps {
	return commandDeps{
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		RunServer:   runServer,
		RunValidate: runValidate,
		RunSchema:   runSchema,
		RunHash:     runHash,
	}
}

type serverCommand struct {
	deps commandDeps
}

func (c serverCommand) Run(args []string) int {
	return c.deps.RunServer(args)
}

type validateCommand struct {
	deps commandDeps
}

func (c validateCommand) Run(args []string) int {
	return c.deps.RunValidate(args, c.deps.Stdout, c.deps.Stderr)
}

type schemaCommand struct {
	deps commandDeps
}

func (c schemaCommand) Run(args []string) int {
	return c.deps.RunSchema(args, c.deps.Stdout, c.deps.Stderr)
}

type hashCommand struct {
	deps commandDeps
}

func (c hashCommand) Run(args []string) int {
	return c.deps.RunHash(args, c.deps.Stdout, c.deps.Stderr)
}

// resolveCommand picks the subcommand. Anything that is not a known
// subcommand, including no arguments at all, runs the server.
func resolveCommand(args []string, deps commandDeps) (command, []string) {
	if len(args) == 0 {
		return serverCommand{deps: deps}, args
	}
	switch args[0] {
	case "serve":
		return serverCommand{deps: deps}, args[1:]
	case "validate":
		return validateCommand{deps: deps}, args[1:]
	case "schema":
		return schemaCommand{deps: deps}, args[1:]
	case "hash":
		return hashCommand{deps: deps}, args[1:]
	}
	return serverCommand{deps: deps}, args
}
