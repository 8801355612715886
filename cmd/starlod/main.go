// Package main is the starlod command itself.
package main

import (
	"log"
	"os"

	"go.starlod.dev/starlod/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
