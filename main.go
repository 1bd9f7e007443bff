package main

import "github.com/craftdeck/craftdeck/cmd"

func main() {
	cmd.Execute()
}
