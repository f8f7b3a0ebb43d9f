package main

import (
	"os"

	"paperbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitGenericError)
	}
}
