// Command arbol evaluates decision-tree models.
package main

import (
	"os"

	"github.com/calleja/arbol/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
