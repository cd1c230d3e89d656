// Command shopsight ingests the retail dataset into daily sales tables and
// serves the analytics API over them.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/shopsight/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
