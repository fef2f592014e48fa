package main

import (
	"os"

	"github.com/funvibe/duet/pkg/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
