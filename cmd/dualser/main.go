package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
