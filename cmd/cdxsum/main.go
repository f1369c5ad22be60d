// Command cdxsum summarizes web archive CDX indexes by host and time.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/cdxsum/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
