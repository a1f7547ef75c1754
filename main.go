package main

import (
	"os"

	"github.com/maxkimambo/xenopipe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
