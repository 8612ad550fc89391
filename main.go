// Package main is the entry point for synwatch, a TCP handshake classifier.
package main

import (
	"fmt"
	"os"

	"synwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
