package main

import (
	"os"

	"github.com/dusk-indust/wavecheck/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
