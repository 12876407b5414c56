package main

import (
	"fmt"
	"os"

	"github.com/straycat158/craftboard/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "craftboard: %v\n", err)
		os.Exit(1)
	}
}
