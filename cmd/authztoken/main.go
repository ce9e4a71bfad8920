// Package main is a bootstrap tool for signing keys and tokens.
//
// Usage:
//
//	authztoken keygen -env production -alg ES256 -format env
//	authztoken issue -config configs/authz.yaml -subject root -role Admin -expires 1h
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const usage = `usage: authztoken <command> [flags]

commands:
  keygen   generate a signing key pair for an environment
  issue    sign a token with the configured key of the active environment
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "authztoken: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "issue":
		return runIssue(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}
