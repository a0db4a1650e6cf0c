package main

import (
	"os"

	piecefindercmder "github.com/puzzleworks/piecefinder/cmd/piecefinder"
)

func main() {
	cmd := piecefindercmder.NewPiecefinderCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
