package main

import (
	"os"

	"orderflow/cmd/orderctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
