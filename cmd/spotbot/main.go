package main

import (
	"os"

	"spotbot/cmd/spotbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
