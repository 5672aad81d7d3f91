package main

import (
	"os"

	"github.com/kestrelsec/ransomchat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
