package main

import (
	"fmt"
	"os"

	"npcchat/apps/server/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[npcchat] %v\n", err)
		os.Exit(1)
	}
}
