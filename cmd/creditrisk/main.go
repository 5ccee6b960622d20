package main

import "github.com/rustyeddy/creditrisk/internal/cli"

func main() {
	cli.Execute()
}
