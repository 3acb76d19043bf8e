// Command r2bctl inspects a RHEL-family host and renders a bootc image
// rebuild recipe from the result.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nvidia/rhel2bootc/internal/cli"
)

func main() {
	if err := cli.New().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
