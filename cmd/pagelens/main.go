// Package main is the entry point for the pagelens service binary.
package main

import "github.com/pagelens/pagelens/cmd"

func main() {
	cmd.Execute()
}
