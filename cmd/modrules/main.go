package main

import (
	"os"

	"github.com/zakazane/modrules/pkg/cli"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
