package main

import "opinionnet/commands"

// main is the entry point of the application.
func main() {
	commands.Execute()
}
