// Package main provides the wheelvet evidence service and CLI.
package main

import (
	"log"
	"os"

	"github.com/wheelvet-project/wheelvet/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
