// cmd/weave/main.go
//
// weave CLI - Interactive shell for weave documents.
//
// Usage:
//
//	weave [document-file]
//
// If no document file is specified, starts with an empty in-memory
// document. Use .help for available commands.
package main

import (
	"flag"
	"fmt"
	"os"

	"weave/pkg/cli"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [document-file]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	path := ""
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	repl, err := cli.NewREPL(path, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening document: %v\n", err)
		os.Exit(1)
	}

	repl.Run()
}
