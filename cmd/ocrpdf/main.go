package main

import "github.com/Wojt3kW/ocrpdf/internal/cli"

var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
