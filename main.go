package main

import (
	"os"

	"github.com/conveyorhq/conveyor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
