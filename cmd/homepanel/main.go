package main

import (
	"os"

	"github.com/dokzlo13/homepanel/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
