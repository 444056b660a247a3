package main

import "github.com/wattscale/wattscale/cmd/wattscale/commands"

func main() {
	commands.Execute()
}
