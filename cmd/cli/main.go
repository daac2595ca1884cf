package main

import "bookswap/cmd/cli/command"

func main() {
	command.Execute()
}
