package main

import (
	"os"

	"github.com/austindbirch/prestus_bff/cmd/gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
