package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Exit codes are part of the CLI contract so wrappers can tell a bad
// config from a missing store without parsing stderr.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
	exitOpen   = 3
	exitSchema = 4
	exitTail   = 5
)

type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return exitOK
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return exitError
}

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "tattle:", err)
	}
	os.Exit(exitCode(err))
}
