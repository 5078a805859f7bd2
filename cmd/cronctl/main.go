package main

import (
	"fmt"
	"os"

	"github.com/RezaEskandarii/cronctl/cmd/cronctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
