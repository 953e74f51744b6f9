// Command rpa validates, compiles and runs RPA workflow projects.
package main

import (
	"context"
	"os"

	"github.com/bissakov/qazcode-rpa-sub001/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
