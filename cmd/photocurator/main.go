// Command photocurator is the photo enrichment pipeline's entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/tmattsson/photocurator/cmd/photocurator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
