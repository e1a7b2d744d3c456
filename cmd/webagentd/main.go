package main

import (
	"os"

	"github.com/okanya/webagentd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
