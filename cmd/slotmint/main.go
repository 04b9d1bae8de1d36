package main

import "github.com/example/slotmint/cmd"

func main() {
	cmd.Execute()
}
