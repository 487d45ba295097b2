// Command stockbook keeps a small shop's catalog, sales and stock.
package main

import (
	"os"

	"github.com/roach88/stockbook/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
