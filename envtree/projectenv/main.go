// Command projectenv prints the environment resolved for a project directory
// from the host environment and the .env files of the directory and its
// parents.
package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
