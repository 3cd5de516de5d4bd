package main

import "github.com/agentic-research/genframe/cmd"

func main() {
	cmd.Execute()
}
