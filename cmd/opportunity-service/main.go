package main

import (
	"os"

	"github.com/trogers1052/earnings-opportunity-service/cmd/opportunity-service/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
