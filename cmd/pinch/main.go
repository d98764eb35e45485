// Package main provides the pinch CLI, a terminal front end over the
// backend-for-frontend. It keeps its bearer token in local storage and
// reads records through the query cache.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	cmd, _ := newRootCmd(os.Stdout)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
