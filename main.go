package main

import (
	"os"

	"github.com/kpiscribe/kpiscribe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
