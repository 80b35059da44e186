package main

import (
	"os"

	"github.com/rustyeddy/gridtrader/cmd/gridtrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
