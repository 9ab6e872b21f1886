package main

import "github.com/shivamSspirit/volition/internal/cmd"

func main() {
	cmd.Execute()
}
