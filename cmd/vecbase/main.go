package main

import "github.com/d65v/vecbase/internal/cli"

func main() {
	cli.Execute()
}
