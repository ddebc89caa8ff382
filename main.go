package main

import "github.com/lotas/doctrack/internal/cli"

func main() {
	cli.Execute()
}
